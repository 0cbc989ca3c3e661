package loaders

import (
	"fmt"
	"image"
	"os"

	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

func init() {
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
}

type ImageLoader struct {
	/** @brief Flips the image vertically while converting. Vulkan samples
	 * with the origin at the top left, most tooling exports bottom left. */
	FlipY bool
}

/**
 * Decodes the file at path into a tightly packed RGBA byte slice. Any format
 * the registered decoders reject is reported as an unsupported format.
 */
func (il *ImageLoader) Load(path string) (*metadata.PixelBlob, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, core.ErrUnsupportedFormat)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if il.FlipY {
		for y := 0; y < bounds.Dy(); y++ {
			srcRow := image.Rect(bounds.Min.X, bounds.Max.Y-1-y, bounds.Max.X, bounds.Max.Y-y)
			draw.Draw(rgba, image.Rect(0, y, bounds.Dx(), y+1), img, srcRow.Min, draw.Src)
		}
	} else {
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	return &metadata.PixelBlob{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Format: metadata.FormatRGBA8,
		Layers: [][]byte{rgba.Pix},
	}, nil
}
