package systems

import (
	"fmt"

	"github.com/spaghettifunk/rivet/engine/renderer"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

// testToken builds a live capability token the way BeginFrame would.
func testToken(frame, completedSerial, submitSerial uint64) FrameToken {
	return FrameToken{
		frame:           frame,
		completedSerial: completedSerial,
		submitSerial:    submitSerial,
		live:            true,
	}
}

type slotWrite struct {
	slot     uint32
	fallback bool
}

// fakeBackend records every backend interaction in memory.
type fakeBackend struct {
	staging *renderer.StagingArena

	created   int
	destroyed int
	immediate int

	targetsCreated   int
	targetsDestroyed int

	slotWrites []slotWrite

	failCreate bool
}

func newFakeBackend(stagingCapacity uint64) *fakeBackend {
	return &fakeBackend{
		staging: renderer.NewStagingArena(make([]byte, stagingCapacity), metadata.CopyOffsetAlignment),
	}
}

func (fb *fakeBackend) Staging() renderer.StagingAllocator {
	return fb.staging
}

func (fb *fakeBackend) TextureCreate(blob *metadata.PixelBlob, regions []metadata.UploadRegion) (*metadata.TextureGPU, error) {
	if fb.failCreate {
		return nil, fmt.Errorf("device says no")
	}
	fb.created++
	return &metadata.TextureGPU{
		Width:        blob.Width,
		Height:       blob.Height,
		Layers:       uint32(len(blob.Layers)),
		MipLevels:    1,
		Format:       blob.Format,
		InternalData: fb.created,
	}, nil
}

func (fb *fakeBackend) TextureCreateImmediate(blob *metadata.PixelBlob) (*metadata.TextureGPU, error) {
	if fb.failCreate {
		return nil, fmt.Errorf("device says no")
	}
	fb.immediate++
	return &metadata.TextureGPU{
		Width:        blob.Width,
		Height:       blob.Height,
		Layers:       uint32(len(blob.Layers)),
		MipLevels:    1,
		Format:       blob.Format,
		InternalData: fb.immediate,
	}, nil
}

func (fb *fakeBackend) TextureDestroy(gpu *metadata.TextureGPU) {
	fb.destroyed++
}

func (fb *fakeBackend) RenderTargetCreate(spec metadata.RenderTargetSpec) (*metadata.RenderTargetGPU, error) {
	if fb.failCreate {
		return nil, fmt.Errorf("device says no")
	}
	fb.targetsCreated++
	return &metadata.RenderTargetGPU{InternalData: fb.targetsCreated}, nil
}

func (fb *fakeBackend) RenderTargetDestroy(gpu *metadata.RenderTargetGPU) {
	fb.targetsDestroyed++
}

func (fb *fakeBackend) WriteTextureSlot(slot uint32, gpu *metadata.TextureGPU) {
	fb.slotWrites = append(fb.slotWrites, slotWrite{slot: slot})
}

func (fb *fakeBackend) WriteRenderTargetSlot(slot uint32, gpu *metadata.RenderTargetGPU) {
	fb.slotWrites = append(fb.slotWrites, slotWrite{slot: slot})
}

func (fb *fakeBackend) WriteFallbackSlot(slot uint32) {
	fb.slotWrites = append(fb.slotWrites, slotWrite{slot: slot, fallback: true})
}

// fakePixels serves canned blobs or canned lock errors per identity.
type fakePixels struct {
	blobs  map[metadata.TextureID]*metadata.PixelBlob
	errs   map[metadata.TextureID]error
	locked map[metadata.TextureID]bool
}

func newFakePixels() *fakePixels {
	return &fakePixels{
		blobs:  make(map[metadata.TextureID]*metadata.PixelBlob),
		errs:   make(map[metadata.TextureID]error),
		locked: make(map[metadata.TextureID]bool),
	}
}

// addTexture registers a square RGBA texture with deterministic bytes.
func (fp *fakePixels) addTexture(id metadata.TextureID, width, height uint32, layers int) {
	blobLayers := make([][]byte, 0, layers)
	for l := 0; l < layers; l++ {
		layer := make([]byte, width*height*4)
		for i := range layer {
			layer[i] = byte(int(id) + l)
		}
		blobLayers = append(blobLayers, layer)
	}
	fp.blobs[id] = &metadata.PixelBlob{
		Width:  width,
		Height: height,
		Format: metadata.FormatRGBA8,
		Layers: blobLayers,
	}
}

func (fp *fakePixels) ResolveIdentity(externalHandle int32) (metadata.TextureID, bool) {
	id, ok := metadata.TextureIDFromHandle(externalHandle)
	if !ok {
		return 0, false
	}
	if _, known := fp.blobs[id]; !known {
		if _, failing := fp.errs[id]; !failing {
			return 0, false
		}
	}
	return id, true
}

func (fp *fakePixels) Lock(id metadata.TextureID) (*metadata.PixelBlob, error) {
	if err, ok := fp.errs[id]; ok {
		return nil, err
	}
	blob, ok := fp.blobs[id]
	if !ok {
		return nil, fmt.Errorf("no pixels for identity %d", id)
	}
	fp.locked[id] = true
	return blob, nil
}

func (fp *fakePixels) Unlock(id metadata.TextureID) {
	fp.locked[id] = false
}
