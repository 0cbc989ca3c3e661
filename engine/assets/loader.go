package assets

import (
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

/**
 * @brief Decodes an on-disk asset into pixel data ready for staging.
 */
type Loader interface {
	Load(path string) (*metadata.PixelBlob, error)
}
