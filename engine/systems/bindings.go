package systems

import (
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

/**
 * @brief TextureBindings is the draw-submission view of the texture
 * systems: pure lookups plus LRU bookkeeping, nothing that can move a slot
 * or touch GPU memory. Handing the draw path this type instead of the full
 * systems keeps the mutators structurally out of reach.
 */
type TextureBindings struct {
	textures *TextureSystem
	slots    *BindlessSystem
}

func NewTextureBindings(ts *TextureSystem, bs *BindlessSystem) *TextureBindings {
	return &TextureBindings{
		textures: ts,
		slots:    bs,
	}
}

// SlotFor returns the bindless slot draw submission should index: the
// identity's own slot, or the fallback. Pure lookup.
func (tb *TextureBindings) SlotFor(id metadata.TextureID) uint32 {
	return tb.slots.SlotFor(id)
}

// MarkUsed records that the upcoming submission references the texture.
// Side-effecting (LRU freshness) but never slot-mutating.
func (tb *TextureBindings) MarkUsed(id metadata.TextureID, frameOrdinal, submitSerial uint64) {
	tb.textures.MarkUsed(id, frameOrdinal, submitSerial)
}

// Descriptor returns the direct-binding descriptor for a resident texture;
// absence means the caller should bind its fallback instead.
func (tb *TextureBindings) Descriptor(id metadata.TextureID) (metadata.ResidentDescriptor, bool) {
	return tb.textures.Descriptor(id)
}
