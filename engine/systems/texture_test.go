package systems

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

func newTextureSystemForTest(t *testing.T, stagingCapacity uint64) (*TextureSystem, *fakeBackend, *fakePixels, *DeferredReleaseQueue) {
	t.Helper()
	backend := newFakeBackend(stagingCapacity)
	pixels := newFakePixels()
	releases := NewDeferredReleaseQueue()
	ts, err := NewTextureSystem(backend, pixels, releases)
	require.NoError(t, err)
	return ts, backend, pixels, releases
}

func TestRequestUploadIsIdempotent(t *testing.T) {
	ts, _, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 1)

	ts.RequestUpload(1)
	ts.RequestUpload(1)
	ts.RequestUpload(1)

	assert.Equal(t, 1, ts.PendingCount())
}

func TestFlushPromotesPendingToResident(t *testing.T) {
	ts, backend, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 1)
	ts.RequestUpload(1)

	ts.Flush(testToken(1, 0, 1))

	assert.Equal(t, 1, backend.created)
	assert.Equal(t, 0, ts.PendingCount())
	record, ok := ts.Resident(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), record.LastUsedFrame)
	assert.Equal(t, uint64(1), record.LastUsedSerial)
	// The lock was paired with an unlock.
	assert.False(t, pixels.locked[1])
}

func TestStatesAreMutuallyExclusive(t *testing.T) {
	ts, _, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 1)
	ts.RequestUpload(1)
	ts.Flush(testToken(1, 0, 1))

	// Resident: re-requesting does not queue again.
	ts.RequestUpload(1)
	assert.Equal(t, 0, ts.PendingCount())
	assert.True(t, func() bool { _, ok := ts.Resident(1); return ok }())
	assert.False(t, ts.IsPending(1))
	_, rejected := ts.RejectedReason(1)
	assert.False(t, rejected)
}

func TestBudgetLimitedFlushKeepsOrder(t *testing.T) {
	// Two 60-byte uploads against a 100-byte arena: only the first fits per
	// frame.
	ts, backend, pixels, _ := newTextureSystemForTest(t, 100)
	// 2x2 RGBA with 3 layers = 16*3 = 48... use sizes that produce 60: a
	// 15-pixel layout is awkward, so use two textures of 60 staged bytes via
	// 15x1 RGBA (60 bytes each).
	pixels.addTexture(1, 15, 1, 1)
	pixels.addTexture(2, 15, 1, 1)
	ts.RequestUpload(1)
	ts.RequestUpload(2)

	ts.Flush(testToken(1, 0, 1))

	assert.Equal(t, 1, backend.created)
	_, firstResident := ts.Resident(1)
	assert.True(t, firstResident)
	assert.True(t, ts.IsPending(2))
	_, rejected := ts.RejectedReason(2)
	assert.False(t, rejected, "a budget miss must not reject")

	// Next frame the arena is reset and the held-back upload lands.
	backend.staging.Reset()
	ts.Flush(testToken(2, 1, 2))
	assert.Equal(t, 2, backend.created)
	_, secondResident := ts.Resident(2)
	assert.True(t, secondResident)
}

func TestOversizeUploadIsRejectedNotRetried(t *testing.T) {
	ts, backend, pixels, _ := newTextureSystemForTest(t, 64)
	// 16x16 RGBA = 1024 bytes, can never fit a 64-byte arena.
	pixels.addTexture(1, 16, 16, 1)
	ts.RequestUpload(1)

	ts.Flush(testToken(1, 0, 1))

	reason, rejected := ts.RejectedReason(1)
	require.True(t, rejected)
	assert.Equal(t, metadata.RejectOversize, reason)
	assert.Equal(t, 0, backend.created)
	assert.False(t, ts.IsPending(1))
}

func TestRejectedIsCachedAcrossRequests(t *testing.T) {
	ts, _, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.errs[1] = fmt.Errorf("bad header: %w", core.ErrUnsupportedFormat)
	ts.RequestUpload(1)
	ts.Flush(testToken(1, 0, 1))

	reason, rejected := ts.RejectedReason(1)
	require.True(t, rejected)
	assert.Equal(t, metadata.RejectUnsupportedFormat, reason)

	// A rejected identity is never re-queued, however many times it is
	// requested and flushed.
	for frame := uint64(2); frame < 1000; frame++ {
		ts.RequestUpload(1)
		ts.Flush(testToken(frame, frame-1, frame))
	}
	assert.Equal(t, 0, ts.PendingCount())
}

func TestBusyPixelsStayPending(t *testing.T) {
	ts, backend, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.errs[1] = fmt.Errorf("mid-rewrite: %w", core.ErrPixelsBusy)
	ts.RequestUpload(1)

	ts.Flush(testToken(1, 0, 1))

	assert.True(t, ts.IsPending(1))
	_, rejected := ts.RejectedReason(1)
	assert.False(t, rejected)

	// Once the source frees up, the retry succeeds.
	delete(pixels.errs, 1)
	pixels.addTexture(1, 2, 2, 1)
	backend.staging.Reset()
	ts.Flush(testToken(2, 1, 2))
	_, resident := ts.Resident(1)
	assert.True(t, resident)
}

func TestMismatchedLayerSizesAreRejected(t *testing.T) {
	ts, _, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 2)
	pixels.blobs[1].Layers[1] = pixels.blobs[1].Layers[1][:8]
	ts.RequestUpload(1)

	ts.Flush(testToken(1, 0, 1))

	reason, rejected := ts.RejectedReason(1)
	require.True(t, rejected)
	assert.Equal(t, metadata.RejectMismatchedLayers, reason)
}

func TestBackendFailureDefersNotRejects(t *testing.T) {
	ts, backend, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 1)
	backend.failCreate = true
	ts.RequestUpload(1)

	ts.Flush(testToken(1, 0, 1))

	assert.True(t, ts.IsPending(1))
	_, rejected := ts.RejectedReason(1)
	assert.False(t, rejected)

	backend.failCreate = false
	backend.staging.Reset()
	ts.Flush(testToken(2, 1, 2))
	_, resident := ts.Resident(1)
	assert.True(t, resident)
}

func TestReleaseRemovesEveryTrace(t *testing.T) {
	ts, backend, pixels, releases := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 1)
	ts.RequestUpload(1)
	ts.Flush(testToken(1, 0, 1))
	ts.MarkUsed(1, 1, 5)

	ts.Release(1)

	_, resident := ts.Resident(1)
	assert.False(t, resident)
	assert.False(t, ts.IsPending(1))
	_, rejected := ts.RejectedReason(1)
	assert.False(t, rejected)

	// Destruction went through the deferred queue, gated on the last-use
	// serial.
	assert.Equal(t, 1, releases.Size())
	releases.Collect(4)
	assert.Equal(t, 0, backend.destroyed)
	releases.Collect(5)
	assert.Equal(t, 1, backend.destroyed)
}

func TestReleasePurgesPendingAndRejected(t *testing.T) {
	ts, _, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 1)
	ts.RequestUpload(1)
	ts.Release(1)
	assert.False(t, ts.IsPending(1))

	pixels.errs[2] = fmt.Errorf("bad: %w", core.ErrUnsupportedFormat)
	ts.RequestUpload(2)
	ts.Flush(testToken(1, 0, 1))
	ts.Release(2)
	_, rejected := ts.RejectedReason(2)
	assert.False(t, rejected)

	// The identity can start over afterwards.
	delete(pixels.errs, 2)
	pixels.addTexture(2, 2, 2, 1)
	ts.RequestUpload(2)
	assert.True(t, ts.IsPending(2))
}

func TestReleaseRespectsSafeRetireSerial(t *testing.T) {
	ts, backend, pixels, releases := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 1)
	ts.RequestUpload(1)
	ts.Flush(testToken(1, 0, 1))

	// Freshly uploaded this frame; the safe serial is the upcoming
	// submission even though the record was never marked used since.
	ts.SetSafeRetireSerial(7)
	ts.Release(1)

	releases.Collect(6)
	assert.Equal(t, 0, backend.destroyed)
	releases.Collect(7)
	assert.Equal(t, 1, backend.destroyed)
}

func TestPreloadBypassesQueue(t *testing.T) {
	ts, backend, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 1)
	ts.RequestUpload(1)

	require.NoError(t, ts.Preload(1))

	assert.Equal(t, 1, backend.immediate)
	assert.Equal(t, 0, backend.created)
	assert.False(t, ts.IsPending(1))
	_, resident := ts.Resident(1)
	assert.True(t, resident)

	// Preloading again is a no-op.
	require.NoError(t, ts.Preload(1))
	assert.Equal(t, 1, backend.immediate)
}

func TestDeleteTextureWaitsForSafePoint(t *testing.T) {
	ts, _, pixels, _ := newTextureSystemForTest(t, 1024)
	pixels.addTexture(1, 2, 2, 1)
	ts.RequestUpload(1)
	ts.Flush(testToken(1, 0, 1))

	ts.DeleteTexture(1)
	ts.DeleteTexture(1)

	// Still resident until the orchestrator takes the retirement.
	_, resident := ts.Resident(1)
	assert.True(t, resident)

	retired := ts.TakeRetirements(testToken(2, 1, 2))
	assert.Equal(t, []metadata.TextureID{1}, retired)
	assert.Empty(t, ts.TakeRetirements(testToken(2, 1, 2)))
}

func TestValidateBlobUnknownFormat(t *testing.T) {
	_, reason, ok := validateBlob(&metadata.PixelBlob{
		Width:  2,
		Height: 2,
		Format: metadata.FormatUnknown,
		Layers: [][]byte{make([]byte, 16)},
	}, 1024)
	assert.False(t, ok)
	assert.Equal(t, metadata.RejectUnsupportedFormat, reason)
}

func TestClassifyLockFailureDefaultsToPermanent(t *testing.T) {
	reason, permanent := classifyLockFailure(fmt.Errorf("truncated file"))
	assert.True(t, permanent)
	assert.Equal(t, metadata.RejectDecodeFailed, reason)

	_, permanent = classifyLockFailure(fmt.Errorf("w: %w", core.ErrPixelsBusy))
	assert.False(t, permanent)
}
