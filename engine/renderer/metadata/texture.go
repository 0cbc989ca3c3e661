package metadata

/**
 * @brief Pixel formats the upload path understands.
 *
 * Anything else coming out of the pixel source is a permanent rejection:
 * there is no conversion fallback past the decode boundary.
 */
type TextureFormat int

const (
	FormatUnknown TextureFormat = iota
	/** @brief 8-bit RGBA, the canonical uncompressed upload format. */
	FormatRGBA8
	/** @brief 8-bit BGRA, used by sources that store pixels byte-swapped. */
	FormatBGRA8
	/** @brief Single-channel 8-bit, used for font/alpha bitmaps. */
	FormatR8
	/** @brief BC1 block compression (8 bytes per 4x4 block). */
	FormatBC1
	/** @brief BC3 block compression (16 bytes per 4x4 block). */
	FormatBC3
	/** @brief BC7 block compression (16 bytes per 4x4 block). */
	FormatBC7
)

// IsBlockCompressed reports whether the format stores 4x4 pixel blocks
// instead of individual pixels.
func (f TextureFormat) IsBlockCompressed() bool {
	switch f {
	case FormatBC1, FormatBC3, FormatBC7:
		return true
	default:
		return false
	}
}

// Supported reports whether the upload path can consume the format at all.
func (f TextureFormat) Supported() bool {
	switch f {
	case FormatRGBA8, FormatBGRA8, FormatR8, FormatBC1, FormatBC3, FormatBC7:
		return true
	default:
		return false
	}
}

/**
 * @brief CPU-side pixel data for one texture, as produced by the pixel
 * source under a lock/unlock pair. Layers holds one byte slice per array
 * layer; all layers must share the extent and format.
 */
type PixelBlob struct {
	Width  uint32
	Height uint32
	Format TextureFormat
	Layers [][]byte
}

/**
 * @brief The backend-owned GPU resource behind a resident texture.
 * Residency code treats InternalData as opaque; only the backend that
 * created the resource may interpret it.
 */
type TextureGPU struct {
	Width        uint32
	Height       uint32
	Layers       uint32
	MipLevels    uint32
	Format       TextureFormat
	InternalData interface{}
}

/**
 * @brief A resident texture record. Existence of the record in the resident
 * collection is what "resident" means; there is no separate status flag.
 */
type Texture struct {
	ID  TextureID
	GPU *TextureGPU
	/** @brief Ordinal of the most recent frame that referenced this texture. */
	LastUsedFrame uint64
	/** @brief Serial of the most recent submission that may reference this texture. */
	LastUsedSerial uint64
}

/**
 * @brief Why an identity was permanently rejected. Rejections are cached
 * until the identity is explicitly released.
 */
type RejectReason int

const (
	RejectUnsupportedFormat RejectReason = iota
	RejectOversize
	RejectDecodeFailed
	RejectMismatchedLayers
)

func (r RejectReason) String() string {
	switch r {
	case RejectUnsupportedFormat:
		return "unsupported format"
	case RejectOversize:
		return "oversize for staging capacity"
	case RejectDecodeFailed:
		return "decode failure"
	case RejectMismatchedLayers:
		return "mismatched array layers"
	}
	return "unknown"
}

/**
 * @brief Descriptor handed to direct (non-bindless) binding callers for an
 * already-resident texture. Absence is signalled by the ok-bool on lookup,
 * never by a sentinel-filled struct.
 */
type ResidentDescriptor struct {
	GPU *TextureGPU
}
