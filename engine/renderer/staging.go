package renderer

import (
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

/**
 * @brief StagingArena is the CPU-side bookkeeping of a per-frame staging
 * buffer: strictly append-only sub-allocation over one contiguous byte
 * range, reclaimed wholesale by Reset. There is no fragmentation to manage
 * because nothing is ever freed mid-frame.
 *
 * The backing bytes are provided by the owner (a mapped GPU buffer in the
 * Vulkan backend, a plain slice in tests).
 */
type StagingArena struct {
	backing   []byte
	alignment uint64
	offset    uint64
}

// NewStagingArena wraps backing memory in an arena. Alignment applies to
// every allocation offset and must be a power of two; zero means unaligned.
func NewStagingArena(backing []byte, alignment uint64) *StagingArena {
	if alignment == 0 {
		alignment = 1
	}
	return &StagingArena{
		backing:   backing,
		alignment: alignment,
	}
}

// Reset reclaims the entire arena. Called once per frame, after the GPU can
// no longer read last frame's staged bytes.
func (sa *StagingArena) Reset() {
	sa.offset = 0
}

// Capacity returns the total byte budget of the arena.
func (sa *StagingArena) Capacity() uint64 {
	return uint64(len(sa.backing))
}

// Remaining returns how many bytes the current frame can still stage,
// ignoring alignment padding of a future request.
func (sa *StagingArena) Remaining() uint64 {
	if sa.offset >= uint64(len(sa.backing)) {
		return 0
	}
	return uint64(len(sa.backing)) - sa.offset
}

// TryAllocate hands out a writable region and its GPU-side offset, or
// reports false if the remaining budget cannot hold the request. A request
// is never partially satisfied.
func (sa *StagingArena) TryAllocate(size uint64) (StagingAllocation, bool) {
	alignedOffset := metadata.AlignUp(sa.offset, sa.alignment)
	if size == 0 || alignedOffset+size > uint64(len(sa.backing)) {
		return StagingAllocation{}, false
	}

	sa.offset = alignedOffset + size
	return StagingAllocation{
		Offset: alignedOffset,
		Bytes:  sa.backing[alignedOffset : alignedOffset+size],
	}, true
}
