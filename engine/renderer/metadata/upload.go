package metadata

// Copy offsets handed to the transfer queue must be 4-byte aligned.
const CopyOffsetAlignment = 4

// CompressedLayerSize returns the byte size of one block-compressed layer.
func CompressedLayerSize(width, height uint32, format TextureFormat) uint64 {
	blockSize := uint64(16)
	if format == FormatBC1 {
		blockSize = 8
	}
	blocksWide := uint64(width+3) / 4
	blocksHigh := uint64(height+3) / 4
	return blocksWide * blocksHigh * blockSize
}

// LayerByteSize returns the byte size of a single array layer as the upload
// path will stage it. Uncompressed color data is always staged at 4 bytes
// per pixel.
func LayerByteSize(width, height uint32, format TextureFormat) uint64 {
	if format.IsBlockCompressed() {
		return CompressedLayerSize(width, height, format)
	}
	if format == FormatR8 {
		return uint64(width) * uint64(height)
	}
	return uint64(width) * uint64(height) * 4
}

/**
 * @brief Byte layout of a multi-layer upload within one staging region.
 */
type UploadLayout struct {
	LayerSize    uint64
	TotalSize    uint64
	LayerOffsets []uint64
}

// BuildUploadLayout computes per-layer staging offsets for an upload,
// keeping every copy offset aligned for the transfer queue.
func BuildUploadLayout(width, height uint32, format TextureFormat, layers uint32) UploadLayout {
	layout := UploadLayout{
		LayerSize:    LayerByteSize(width, height, format),
		LayerOffsets: make([]uint64, 0, layers),
	}

	offset := uint64(0)
	for layer := uint32(0); layer < layers; layer++ {
		offset = AlignUp(offset, CopyOffsetAlignment)
		layout.LayerOffsets = append(layout.LayerOffsets, offset)
		offset += layout.LayerSize
	}
	layout.TotalSize = AlignUp(offset, CopyOffsetAlignment)
	return layout
}

/**
 * @brief One staged layer copy: where the bytes sit in the staging buffer
 * and which array layer of the destination image they fill.
 */
type UploadRegion struct {
	StagingOffset uint64
	Layer         uint32
}
