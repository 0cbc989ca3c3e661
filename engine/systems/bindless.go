package systems

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/rivet/engine/containers"
	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

// Reserved bindless slots. Slot 0 always holds a valid fallback image so
// bindless sampling never touches a destroyed resource; slots 1..3 hold the
// well-known defaults so shaders need no "absent texture" sentinel routing.
const (
	SlotFallback      uint32 = 0
	SlotDefaultBase   uint32 = 1
	SlotDefaultNormal uint32 = 2
	SlotDefaultSpec   uint32 = 3
	FirstDynamicSlot  uint32 = 4
	DefaultMaxSlots   uint32 = 1024
)

/** @brief The configuration for the bindless slot table. */
type BindlessSystemConfig struct {
	/** @brief Total number of shader-visible texture slots, reserved ones included. */
	MaxSlots uint32
}

/**
 * @brief BindlessSystem owns the fixed-capacity shader-visible slot table.
 * Slot↔identity ownership is a bidirectional mapping mutated only at the
 * frame-start safe point; SlotFor is the one draw-path entry and never
 * mutates, which is what makes the two call sites safe without locking.
 */
type BindlessSystem struct {
	config  *BindlessSystemConfig
	backend renderer.RendererBackend

	textures      *TextureSystem
	renderTargets *RenderTargetSystem

	// Both directions of slot ownership; always updated together.
	slotOf  map[metadata.TextureID]uint32
	ownerOf map[uint32]metadata.TextureID

	freeSlots []uint32

	// Identities that wanted a slot under pressure; retried at the next
	// safe point, in request order.
	wantSlot *containers.DedupQueue[metadata.TextureID]
}

func NewBindlessSystem(config *BindlessSystemConfig, backend renderer.RendererBackend, ts *TextureSystem, rts *RenderTargetSystem) (*BindlessSystem, error) {
	if config.MaxSlots <= FirstDynamicSlot {
		err := fmt.Errorf("func NewBindlessSystem - config.MaxSlots must be > %d to leave room for dynamic slots", FirstDynamicSlot)
		core.LogError(err.Error())
		return nil, err
	}
	if backend == nil || ts == nil || rts == nil {
		err := fmt.Errorf("func NewBindlessSystem - backend, texture system and render target system must all be set")
		core.LogError(err.Error())
		return nil, err
	}

	bs := &BindlessSystem{
		config:        config,
		backend:       backend,
		textures:      ts,
		renderTargets: rts,
		slotOf:        make(map[metadata.TextureID]uint32),
		ownerOf:       make(map[uint32]metadata.TextureID),
		freeSlots:     make([]uint32, 0, config.MaxSlots-FirstDynamicSlot),
		wantSlot:      containers.NewDedupQueue[metadata.TextureID](),
	}
	// Reserved slots never enter the free pool. Highest dynamic slot goes
	// in first so the pool pops in ascending order.
	for slot := config.MaxSlots - 1; slot >= FirstDynamicSlot; slot-- {
		bs.freeSlots = append(bs.freeSlots, slot)
	}
	return bs, nil
}

// SlotFor is the draw-path lookup: the assigned dynamic slot if one exists,
// else the fallback slot. Never mutates table state.
func (bs *BindlessSystem) SlotFor(id metadata.TextureID) uint32 {
	if slot, ok := bs.slotOf[id]; ok {
		return slot
	}
	return SlotFallback
}

// HasSlot reports whether the identity currently owns a dynamic slot.
func (bs *BindlessSystem) HasSlot(id metadata.TextureID) bool {
	_, ok := bs.slotOf[id]
	return ok
}

// RequestSlot assigns a dynamic slot to a resident identity, trying the
// free list, then reclamation of slots whose owner is gone, then LRU
// eviction. Under full pressure the identity is recorded for retry at the
// next safe point and the fallback slot is returned; that is an operating
// condition, not an error.
func (bs *BindlessSystem) RequestSlot(token FrameToken, id metadata.TextureID) uint32 {
	requireFrameToken(token, "BindlessSystem.RequestSlot")

	if slot, ok := bs.slotOf[id]; ok {
		return slot
	}

	// Slot assignment only ever targets identities that are resident (or a
	// live render target). Anything else waits in the want-queue until its
	// upload lands.
	record, isTexture := bs.textures.Resident(id)
	target, isTarget := bs.renderTargets.Lookup(id)
	if !isTexture && !isTarget {
		bs.wantSlot.Enqueue(id)
		return SlotFallback
	}

	slot, ok := bs.takeFreeSlot()
	if !ok {
		bs.reclaimNonResident()
		slot, ok = bs.takeFreeSlot()
	}
	if !ok {
		slot, ok = bs.evictOne(token)
	}
	if !ok {
		bs.wantSlot.Enqueue(id)
		return SlotFallback
	}

	bs.slotOf[id] = slot
	bs.ownerOf[slot] = id
	if isTexture {
		bs.backend.WriteTextureSlot(slot, record.GPU)
	} else {
		bs.backend.WriteRenderTargetSlot(slot, target.GPU)
	}
	return slot
}

// RetryPending replays deferred slot requests at the safe point. Identities
// that became resident get real slots; ones still uploading keep waiting;
// ones that vanished or were rejected are dropped.
func (bs *BindlessSystem) RetryPending(token FrameToken) {
	requireFrameToken(token, "BindlessSystem.RetryPending")

	count := bs.wantSlot.Len()
	for i := 0; i < count; i++ {
		id, ok := bs.wantSlot.Dequeue()
		if !ok {
			break
		}

		_, isTexture := bs.textures.Resident(id)
		_, isTarget := bs.renderTargets.Lookup(id)
		if isTexture || isTarget {
			bs.RequestSlot(token, id)
			continue
		}
		if bs.textures.IsPending(id) {
			// Upload still in flight; keep waiting.
			bs.wantSlot.Enqueue(id)
		}
	}
}

// ReleaseIdentity drops every trace of an identity from the table: its slot
// (rewritten to the fallback first) and any pending slot request. Safe to
// call mid-frame because the slot keeps pointing at a valid image.
func (bs *BindlessSystem) ReleaseIdentity(id metadata.TextureID) {
	bs.wantSlot.Remove(id)

	slot, ok := bs.slotOf[id]
	if !ok {
		return
	}
	bs.releaseSlot(slot, id)
}

// DynamicSlotsInUse returns how many dynamic slots currently have owners.
func (bs *BindlessSystem) DynamicSlotsInUse() int {
	return len(bs.ownerOf)
}

// PendingRequests returns how many identities are waiting for a slot.
func (bs *BindlessSystem) PendingRequests() int {
	return bs.wantSlot.Len()
}

func (bs *BindlessSystem) takeFreeSlot() (uint32, bool) {
	if len(bs.freeSlots) == 0 {
		return 0, false
	}
	slot := bs.freeSlots[len(bs.freeSlots)-1]
	bs.freeSlots = bs.freeSlots[:len(bs.freeSlots)-1]
	return slot, true
}

func (bs *BindlessSystem) releaseSlot(slot uint32, id metadata.TextureID) {
	bs.backend.WriteFallbackSlot(slot)
	delete(bs.slotOf, id)
	delete(bs.ownerOf, slot)
	bs.freeSlots = append(bs.freeSlots, slot)
}

// reclaimNonResident frees slots whose owner is no longer resident at all.
// Always safe regardless of GPU progress: the backing image is already gone
// from the ledger, and its slot descriptor was rewritten to the fallback
// when it left.
func (bs *BindlessSystem) reclaimNonResident() {
	var stale []uint32
	for slot, id := range bs.ownerOf {
		_, isTexture := bs.textures.Resident(id)
		_, isTarget := bs.renderTargets.Lookup(id)
		if !isTexture && !isTarget {
			stale = append(stale, slot)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	for _, slot := range stale {
		bs.releaseSlot(slot, bs.ownerOf[slot])
	}
}

// evictOne selects and evicts the least-recently-used resident slot owner.
// A candidate must not be a pinned render target and must have its last-use
// serial already confirmed complete: eviction safety never rests on
// guessing GPU progress. Ties on the frame ordinal break by identity so
// behavior stays reproducible. The evicted texture remains resident; it
// only loses its slot.
func (bs *BindlessSystem) evictOne(token FrameToken) (uint32, bool) {
	var (
		victimSlot uint32
		victimID   metadata.TextureID
		victim     *metadata.Texture
		found      bool
	)

	for slot, id := range bs.ownerOf {
		if _, pinned := bs.renderTargets.Lookup(id); pinned {
			continue
		}
		record, ok := bs.textures.Resident(id)
		if !ok {
			continue
		}
		if record.LastUsedSerial > token.CompletedSerial() {
			// The GPU may still be sampling this one.
			continue
		}
		if !found ||
			record.LastUsedFrame < victim.LastUsedFrame ||
			(record.LastUsedFrame == victim.LastUsedFrame && id < victimID) {
			victimSlot, victimID, victim, found = slot, id, record, true
		}
	}

	if !found {
		return 0, false
	}

	core.LogDebug("evicting texture %d from bindless slot %d (last used frame %d)", victimID, victimSlot, victim.LastUsedFrame)
	bs.releaseSlot(victimSlot, victimID)
	return bs.takeFreeSlot()
}
