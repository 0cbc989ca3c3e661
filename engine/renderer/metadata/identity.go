package metadata

/**
 * @brief An opaque identity for a texture tracked by the residency systems.
 *
 * A TextureID is derived exactly once, at the system boundary, from an
 * external bitmap handle. TextureIDFromHandle is the only place raw handles
 * are validated; everything past that point trusts the identity by
 * construction and never re-checks it.
 */
type TextureID int32

// TextureIDFromHandle converts an external handle into a TextureID.
// Negative handles are invalid and never produce an identity.
func TextureIDFromHandle(handle int32) (TextureID, bool) {
	if handle < 0 {
		return 0, false
	}
	return TextureID(handle), true
}
