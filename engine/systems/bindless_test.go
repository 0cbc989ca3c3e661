package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

// newBindlessForTest wires a slot table over real texture and render target
// systems backed by fakes, with the given total slot count.
func newBindlessForTest(t *testing.T, maxSlots uint32) (*BindlessSystem, *TextureSystem, *RenderTargetSystem, *fakeBackend, *fakePixels) {
	t.Helper()
	backend := newFakeBackend(64 * 1024)
	pixels := newFakePixels()
	releases := NewDeferredReleaseQueue()
	ts, err := NewTextureSystem(backend, pixels, releases)
	require.NoError(t, err)
	rts, err := NewRenderTargetSystem(backend, releases)
	require.NoError(t, err)
	bs, err := NewBindlessSystem(&BindlessSystemConfig{MaxSlots: maxSlots}, backend, ts, rts)
	require.NoError(t, err)
	return bs, ts, rts, backend, pixels
}

func makeResident(t *testing.T, ts *TextureSystem, pixels *fakePixels, token FrameToken, ids ...metadata.TextureID) {
	t.Helper()
	for _, id := range ids {
		pixels.addTexture(id, 2, 2, 1)
		ts.RequestUpload(id)
	}
	ts.Flush(token)
	for _, id := range ids {
		_, ok := ts.Resident(id)
		require.True(t, ok)
	}
}

func TestSlotTableRejectsTooFewSlots(t *testing.T) {
	backend := newFakeBackend(1024)
	releases := NewDeferredReleaseQueue()
	ts, err := NewTextureSystem(backend, newFakePixels(), releases)
	require.NoError(t, err)
	rts, err := NewRenderTargetSystem(backend, releases)
	require.NoError(t, err)

	_, err = NewBindlessSystem(&BindlessSystemConfig{MaxSlots: FirstDynamicSlot}, backend, ts, rts)
	assert.Error(t, err)
}

func TestSlotForNeverMutates(t *testing.T) {
	bs, ts, _, _, pixels := newBindlessForTest(t, 8)
	token := testToken(1, 0, 1)
	makeResident(t, ts, pixels, token, 1)
	assigned := bs.RequestSlot(token, 1)

	for i := 0; i < 10000; i++ {
		assert.Equal(t, assigned, bs.SlotFor(1))
		// Unknown identities resolve to the fallback without queueing
		// anything.
		assert.Equal(t, SlotFallback, bs.SlotFor(999))
	}
	assert.Equal(t, 0, bs.PendingRequests())
	assert.Equal(t, 1, bs.DynamicSlotsInUse())
}

func TestRequestSlotAssignsAscendingFromFirstDynamic(t *testing.T) {
	bs, ts, _, _, pixels := newBindlessForTest(t, 8)
	token := testToken(1, 0, 1)
	makeResident(t, ts, pixels, token, 1, 2, 3)

	assert.Equal(t, FirstDynamicSlot, bs.RequestSlot(token, 1))
	assert.Equal(t, FirstDynamicSlot+1, bs.RequestSlot(token, 2))
	assert.Equal(t, FirstDynamicSlot+2, bs.RequestSlot(token, 3))

	// Stable across repeated requests.
	assert.Equal(t, FirstDynamicSlot, bs.RequestSlot(token, 1))
}

func TestRequestSlotForNonResidentWaits(t *testing.T) {
	bs, ts, _, _, pixels := newBindlessForTest(t, 8)
	token := testToken(1, 0, 1)

	// Not resident yet: fallback now, queued for retry.
	pixels.addTexture(1, 2, 2, 1)
	ts.RequestUpload(1)
	assert.Equal(t, SlotFallback, bs.RequestSlot(token, 1))
	assert.Equal(t, 1, bs.PendingRequests())

	// Upload lands; the retry pass hands out a real slot.
	ts.Flush(token)
	bs.RetryPending(token)
	assert.Equal(t, 0, bs.PendingRequests())
	assert.True(t, bs.HasSlot(1))
}

func TestRetryDropsVanishedIdentities(t *testing.T) {
	bs, ts, _, _, pixels := newBindlessForTest(t, 8)
	token := testToken(1, 0, 1)

	pixels.addTexture(1, 2, 2, 1)
	ts.RequestUpload(1)
	bs.RequestSlot(token, 1)
	require.Equal(t, 1, bs.PendingRequests())

	// Released before it ever became resident: the want entry is dropped.
	ts.Release(1)
	bs.RetryPending(token)
	assert.Equal(t, 0, bs.PendingRequests())
	assert.False(t, bs.HasSlot(1))
}

func TestEvictionUnderPressure(t *testing.T) {
	// 4 reserved + 4 dynamic slots; fill all four then ask for a fifth.
	bs, ts, _, backend, pixels := newBindlessForTest(t, 8)
	token := testToken(1, 0, 1)
	makeResident(t, ts, pixels, token, 1, 2, 3, 4, 5)

	for _, id := range []metadata.TextureID{1, 2, 3, 4} {
		bs.RequestSlot(token, id)
	}
	require.Equal(t, 4, bs.DynamicSlotsInUse())

	// Stamp distinct usage; texture 2 is the coldest.
	ts.MarkUsed(1, 10, 3)
	ts.MarkUsed(2, 5, 3)
	ts.MarkUsed(3, 11, 3)
	ts.MarkUsed(4, 12, 3)

	// All last-use serials are confirmed complete.
	laterToken := testToken(20, 3, 4)
	slot := bs.RequestSlot(laterToken, 5)

	assert.NotEqual(t, SlotFallback, slot)
	assert.False(t, bs.HasSlot(2), "the LRU owner loses its slot")
	assert.True(t, bs.HasSlot(5))
	// The evicted texture stays resident; only the slot moved.
	_, stillResident := ts.Resident(2)
	assert.True(t, stillResident)
	// The retired slot was rewritten to the fallback before reuse.
	foundFallbackWrite := false
	for _, w := range backend.slotWrites {
		if w.fallback && w.slot == slot {
			foundFallbackWrite = true
		}
	}
	assert.True(t, foundFallbackWrite)
}

func TestEvictionTieBreaksOnIdentity(t *testing.T) {
	bs, ts, _, _, pixels := newBindlessForTest(t, 6)
	token := testToken(1, 0, 1)
	makeResident(t, ts, pixels, token, 7, 3)
	bs.RequestSlot(token, 7)
	bs.RequestSlot(token, 3)

	// Same frame ordinal on both; the smaller identity is the victim.
	ts.MarkUsed(7, 4, 2)
	ts.MarkUsed(3, 4, 2)
	makeResident(t, ts, pixels, testToken(5, 2, 6), 9)

	bs.RequestSlot(testToken(6, 2, 7), 9)
	assert.False(t, bs.HasSlot(3))
	assert.True(t, bs.HasSlot(7))
}

func TestEvictionRefusesUnconfirmedSerials(t *testing.T) {
	bs, ts, _, _, pixels := newBindlessForTest(t, 6)
	token := testToken(1, 0, 1)
	makeResident(t, ts, pixels, token, 1, 2, 3)
	bs.RequestSlot(token, 1)
	bs.RequestSlot(token, 2)

	// Both owners were used by a submission the GPU has not confirmed.
	ts.MarkUsed(1, 1, 9)
	ts.MarkUsed(2, 1, 9)

	pressureToken := testToken(2, 1, 2)
	slot := bs.RequestSlot(pressureToken, 3)
	assert.Equal(t, SlotFallback, slot)
	assert.Equal(t, 1, bs.PendingRequests())
	assert.True(t, bs.HasSlot(1))
	assert.True(t, bs.HasSlot(2))
}

func TestReclaimPrefersNonResidentSlots(t *testing.T) {
	bs, ts, _, _, pixels := newBindlessForTest(t, 6)
	token := testToken(1, 0, 1)
	makeResident(t, ts, pixels, token, 1, 2)
	bs.RequestSlot(token, 1)
	bs.RequestSlot(token, 2)
	require.Equal(t, 2, bs.DynamicSlotsInUse())

	// Texture 1 leaves the ledger but its slot entry lingers.
	ts.Release(1)

	// Hot usage on texture 2 would forbid eviction, yet the request still
	// succeeds via reclamation of the stale slot.
	ts.MarkUsed(2, 1, 99)
	makeResident(t, ts, pixels, testToken(2, 0, 3), 3)
	slot := bs.RequestSlot(testToken(2, 0, 3), 3)

	assert.NotEqual(t, SlotFallback, slot)
	assert.True(t, bs.HasSlot(2))
	assert.False(t, bs.HasSlot(1))
}

func TestRenderTargetsArePinned(t *testing.T) {
	bs, ts, rts, _, pixels := newBindlessForTest(t, 6)
	token := testToken(1, 0, 1)

	_, err := rts.Create(token, 100, metadata.RenderTargetSpec{
		Name: "gbuffer", Width: 64, Height: 64, Format: metadata.FormatRGBA8, Sampled: true,
	})
	require.NoError(t, err)
	makeResident(t, ts, pixels, token, 1)

	targetSlot := bs.RequestSlot(token, 100)
	require.NotEqual(t, SlotFallback, targetSlot)
	bs.RequestSlot(token, 1)
	require.Equal(t, 2, bs.DynamicSlotsInUse())

	// The texture has a confirmed cold serial; the render target was just
	// used. Pressure must evict the texture, never the pinned target.
	ts.MarkUsed(1, 1, 0)
	rts.MarkUsed(100, 0)
	makeResident(t, ts, pixels, testToken(2, 1, 3), 2)

	bs.RequestSlot(testToken(3, 2, 4), 2)
	assert.True(t, bs.HasSlot(100))
	assert.False(t, bs.HasSlot(1))
}

func TestReleaseIdentityFreesSlotAndWant(t *testing.T) {
	bs, ts, _, backend, pixels := newBindlessForTest(t, 8)
	token := testToken(1, 0, 1)
	makeResident(t, ts, pixels, token, 1)
	slot := bs.RequestSlot(token, 1)

	bs.ReleaseIdentity(1)

	assert.False(t, bs.HasSlot(1))
	assert.Equal(t, 0, bs.DynamicSlotsInUse())
	last := backend.slotWrites[len(backend.slotWrites)-1]
	assert.True(t, last.fallback)
	assert.Equal(t, slot, last.slot)

	// Want-queue entries disappear too.
	bs.RequestSlot(token, 42)
	require.Equal(t, 1, bs.PendingRequests())
	bs.ReleaseIdentity(42)
	assert.Equal(t, 0, bs.PendingRequests())
}
