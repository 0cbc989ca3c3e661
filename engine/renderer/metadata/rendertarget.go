package metadata

/**
 * @brief Creation parameters for a GPU-created (not CPU-uploaded) image.
 */
type RenderTargetSpec struct {
	Name      string
	Width     uint32
	Height    uint32
	Format    TextureFormat
	MipLevels uint32
	/** @brief Whether the target needs a sampled view in addition to the attachment view. */
	Sampled bool
}

/**
 * @brief The backend-owned GPU resources behind a render target: image,
 * memory and attachment/sampled views created and destroyed as one unit.
 */
type RenderTargetGPU struct {
	InternalData interface{}
}

/**
 * @brief A registered render target. The GPU image and its metadata live in
 * this single owned record, so neither can exist without the other. Entries
 * are pinned: they are never eviction candidates regardless of recency.
 */
type RenderTargetEntry struct {
	ID TextureID
	/** @brief Unique diagnostic name, reported in logs alongside Spec.Name. */
	DebugName string
	Spec      RenderTargetSpec
	GPU       *RenderTargetGPU
	/** @brief Serial of the most recent submission that may reference this target. */
	LastUsedSerial uint64
}
