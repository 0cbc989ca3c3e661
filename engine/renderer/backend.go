package renderer

import "github.com/spaghettifunk/rivet/engine/renderer/metadata"

/**
 * @brief A writable staging region and its GPU-side byte offset.
 */
type StagingAllocation struct {
	Offset uint64
	Bytes  []byte
}

/**
 * @brief Per-frame linear allocator for pixel bytes awaiting transfer.
 * The whole arena is reclaimed at once by Reset at frame start; requests
 * are never partially satisfied.
 */
type StagingAllocator interface {
	Reset()
	Capacity() uint64
	TryAllocate(size uint64) (StagingAllocation, bool)
}

/**
 * @brief The image/bitmap subsystem boundary. ResolveIdentity is the single
 * place external handles are validated. Lock failures are classified with
 * the core sentinel errors: ErrUnsupportedFormat, ErrOversizeUpload and
 * ErrMismatchedLayers are permanent, ErrPixelsBusy is transient.
 */
type PixelSource interface {
	ResolveIdentity(externalHandle int32) (metadata.TextureID, bool)
	Lock(id metadata.TextureID) (*metadata.PixelBlob, error)
	Unlock(id metadata.TextureID)
}

type RendererBackend interface {
	// Staging returns the per-frame upload arena. The frame orchestrator
	// resets it once per frame before any flush runs.
	Staging() StagingAllocator

	// TextureCreate turns staged pixel bytes into a GPU-resident image,
	// recording the copy commands for the current frame's submission. The
	// regions reference offsets handed out by Staging this frame.
	TextureCreate(blob *metadata.PixelBlob, regions []metadata.UploadRegion) (*metadata.TextureGPU, error)

	// TextureCreateImmediate uploads with a private staging buffer and
	// blocks the calling thread until the transfer completes. Reserved for
	// pre-first-frame preloading; it must not stall the whole GPU queue.
	TextureCreateImmediate(blob *metadata.PixelBlob) (*metadata.TextureGPU, error)

	// TextureDestroy frees the GPU resource. Only the deferred release
	// queue may reach this; there is no other destroy path.
	TextureDestroy(gpu *metadata.TextureGPU)

	RenderTargetCreate(spec metadata.RenderTargetSpec) (*metadata.RenderTargetGPU, error)
	RenderTargetDestroy(gpu *metadata.RenderTargetGPU)

	// WriteTextureSlot points a bindless table slot at a resident image.
	WriteTextureSlot(slot uint32, gpu *metadata.TextureGPU)
	// WriteRenderTargetSlot points a bindless table slot at a render
	// target's sampled view.
	WriteRenderTargetSlot(slot uint32, gpu *metadata.RenderTargetGPU)
	// WriteFallbackSlot points a bindless table slot back at the fallback
	// image so retired slots never reference destroyed resources.
	WriteFallbackSlot(slot uint32)
}
