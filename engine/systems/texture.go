package systems

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/rivet/engine/containers"
	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

/**
 * @brief TextureSystem is the residency ledger: it decides which textures
 * exist on the GPU and when. Residency state is container membership and
 * nothing else — an identity is Pending, Resident or Rejected exactly when
 * the matching collection holds it, so the state machine cannot desync from
 * a status flag. An identity in none of the collections is Untracked.
 */
type TextureSystem struct {
	backend  renderer.RendererBackend
	pixels   renderer.PixelSource
	releases *DeferredReleaseQueue

	// Pending: deduplicating FIFO, also the upload order.
	pending *containers.DedupQueue[metadata.TextureID]
	// Resident: GPU resource exists, ready to sample.
	resident map[metadata.TextureID]*metadata.Texture
	// Rejected: permanently outside the supported domain. Never retried.
	rejected map[metadata.TextureID]metadata.RejectReason

	// Soft-deleted identities awaiting the next safe point.
	retiring []metadata.TextureID

	// Serial at/after which it is safe to destroy newly-retired resources.
	safeRetireSerial uint64
}

func NewTextureSystem(backend renderer.RendererBackend, pixels renderer.PixelSource, releases *DeferredReleaseQueue) (*TextureSystem, error) {
	if backend == nil || pixels == nil || releases == nil {
		err := fmt.Errorf("func NewTextureSystem - backend, pixels and releases must all be set")
		core.LogError(err.Error())
		return nil, err
	}
	return &TextureSystem{
		backend:  backend,
		pixels:   pixels,
		releases: releases,
		pending:  containers.NewDedupQueue[metadata.TextureID](),
		resident: make(map[metadata.TextureID]*metadata.Texture),
		rejected: make(map[metadata.TextureID]metadata.RejectReason),
	}, nil
}

// RequestUpload queues an identity for upload. Idempotent: a no-op when the
// identity is already Pending, Resident or Rejected.
func (ts *TextureSystem) RequestUpload(id metadata.TextureID) {
	if _, ok := ts.resident[id]; ok {
		return
	}
	if _, ok := ts.rejected[id]; ok {
		return
	}
	ts.pending.Enqueue(id)
}

// Flush promotes Pending identities to Resident in FIFO order against this
// frame's staging budget. Entries that do not fit the remaining budget stay
// Pending, in order, for the next flush; entries that can never fit, or
// whose data is invalid, move to Rejected.
func (ts *TextureSystem) Flush(token FrameToken) {
	requireFrameToken(token, "TextureSystem.Flush")

	count := ts.pending.Len()
	if count == 0 {
		return
	}

	staging := ts.backend.Staging()
	remaining := make([]metadata.TextureID, 0, count)

	for i := 0; i < count; i++ {
		id, ok := ts.pending.Dequeue()
		if !ok {
			break
		}
		// Release or preload may have changed the identity's state while it
		// sat in the queue.
		if _, isResident := ts.resident[id]; isResident {
			continue
		}
		if _, isRejected := ts.rejected[id]; isRejected {
			continue
		}

		switch ts.uploadOne(id, token, staging) {
		case uploadDeferred:
			remaining = append(remaining, id)
		default:
			// Promoted or rejected; nothing left to track here.
		}
	}

	for _, id := range remaining {
		ts.pending.Enqueue(id)
	}
}

type uploadOutcome int

const (
	uploadPromoted uploadOutcome = iota
	uploadRejected
	uploadDeferred
)

func (ts *TextureSystem) uploadOne(id metadata.TextureID, token FrameToken, staging renderer.StagingAllocator) uploadOutcome {
	blob, err := ts.pixels.Lock(id)
	if err != nil {
		if reason, permanent := classifyLockFailure(err); permanent {
			ts.reject(id, reason)
			return uploadRejected
		}
		return uploadDeferred
	}
	defer ts.pixels.Unlock(id)

	layout, reason, ok := validateBlob(blob, staging.Capacity())
	if !ok {
		ts.reject(id, reason)
		return uploadRejected
	}

	alloc, ok := staging.TryAllocate(layout.TotalSize)
	if !ok {
		// Budget exhausted this frame; fits in a fresh arena next flush.
		return uploadDeferred
	}

	regions := make([]metadata.UploadRegion, 0, len(blob.Layers))
	for layer, pixels := range blob.Layers {
		offset := layout.LayerOffsets[layer]
		copy(alloc.Bytes[offset:offset+layout.LayerSize], pixels)
		regions = append(regions, metadata.UploadRegion{
			StagingOffset: alloc.Offset + offset,
			Layer:         uint32(layer),
		})
	}

	gpu, err := ts.backend.TextureCreate(blob, regions)
	if err != nil {
		// Device-side failure; the staged bytes are simply abandoned and
		// the identity retries on the next flush.
		core.LogError("TextureSystem.Flush - upload of texture %d failed: %v", id, err)
		return uploadDeferred
	}

	ts.resident[id] = &metadata.Texture{
		ID:             id,
		GPU:            gpu,
		LastUsedFrame:  token.Frame(),
		LastUsedSerial: token.SubmitSerial(),
	}
	return uploadPromoted
}

// Preload uploads immediately on the calling thread, bypassing the
// per-frame queue. Reserved for pre-first-frame loading; it blocks until
// the transfer completes.
func (ts *TextureSystem) Preload(id metadata.TextureID) error {
	if _, ok := ts.resident[id]; ok {
		return nil
	}
	if reason, ok := ts.rejected[id]; ok {
		return fmt.Errorf("texture %d was rejected: %s", id, reason)
	}

	blob, err := ts.pixels.Lock(id)
	if err != nil {
		if reason, permanent := classifyLockFailure(err); permanent {
			ts.reject(id, reason)
			return fmt.Errorf("texture %d rejected during preload: %s", id, reason)
		}
		return fmt.Errorf("preload of texture %d: %w", id, err)
	}
	defer ts.pixels.Unlock(id)

	if _, reason, ok := validateBlob(blob, ts.backend.Staging().Capacity()); !ok {
		ts.reject(id, reason)
		return fmt.Errorf("texture %d rejected during preload: %s", id, reason)
	}

	gpu, err := ts.backend.TextureCreateImmediate(blob)
	if err != nil {
		return fmt.Errorf("immediate upload of texture %d: %w", id, err)
	}

	ts.pending.Remove(id)
	ts.resident[id] = &metadata.Texture{ID: id, GPU: gpu}
	return nil
}

// Release unconditionally removes the identity from every ledger
// collection. Callable mid-frame; the external handle may be reused for an
// unrelated texture immediately afterwards, so no trace may remain. A
// resident GPU resource is handed to the deferred release queue, never
// destroyed in place.
func (ts *TextureSystem) Release(id metadata.TextureID) {
	ts.pending.Remove(id)
	delete(ts.rejected, id)

	record, ok := ts.resident[id]
	if !ok {
		return
	}
	delete(ts.resident, id)

	retireAt := record.LastUsedSerial
	if ts.safeRetireSerial > retireAt {
		retireAt = ts.safeRetireSerial
	}
	gpu := record.GPU
	ts.releases.Enqueue(retireAt, func() {
		ts.backend.TextureDestroy(gpu)
	})
}

// DeleteTexture marks an identity for teardown at the next safe point, so a
// slot the current in-flight frame still references is never invalidated
// mid-frame.
func (ts *TextureSystem) DeleteTexture(id metadata.TextureID) {
	for _, queued := range ts.retiring {
		if queued == id {
			return
		}
	}
	ts.retiring = append(ts.retiring, id)
}

// TakeRetirements returns and clears the soft-deleted identities. Only the
// frame orchestrator calls this, at the safe point.
func (ts *TextureSystem) TakeRetirements(token FrameToken) []metadata.TextureID {
	requireFrameToken(token, "TextureSystem.TakeRetirements")
	out := ts.retiring
	ts.retiring = nil
	return out
}

// MarkUsed records LRU freshness for a resident texture. Side-effecting but
// not slot-mutating, so the draw-submission path may call it.
func (ts *TextureSystem) MarkUsed(id metadata.TextureID, frameOrdinal, submitSerial uint64) {
	record, ok := ts.resident[id]
	if !ok {
		return
	}
	record.LastUsedFrame = frameOrdinal
	record.LastUsedSerial = submitSerial
}

// Descriptor returns the direct-binding descriptor for a resident texture.
func (ts *TextureSystem) Descriptor(id metadata.TextureID) (metadata.ResidentDescriptor, bool) {
	record, ok := ts.resident[id]
	if !ok {
		return metadata.ResidentDescriptor{}, false
	}
	return metadata.ResidentDescriptor{GPU: record.GPU}, true
}

// Resident returns the ledger record for a resident identity.
func (ts *TextureSystem) Resident(id metadata.TextureID) (*metadata.Texture, bool) {
	record, ok := ts.resident[id]
	return record, ok
}

// IsPending reports queue membership, which is what Pending means.
func (ts *TextureSystem) IsPending(id metadata.TextureID) bool {
	return ts.pending.Contains(id)
}

// RejectedReason reports whether and why an identity was rejected.
func (ts *TextureSystem) RejectedReason(id metadata.TextureID) (metadata.RejectReason, bool) {
	reason, ok := ts.rejected[id]
	return reason, ok
}

// PendingCount returns the upload queue length.
func (ts *TextureSystem) PendingCount() int {
	return ts.pending.Len()
}

// SetSafeRetireSerial updates the serial used to stamp resources retired
// from this point on. During recording this is the upcoming submission's
// serial.
func (ts *TextureSystem) SetSafeRetireSerial(serial uint64) {
	ts.safeRetireSerial = serial
}

// Shutdown releases every tracked identity. The caller is responsible for
// collecting the deferred queue once the device is idle.
func (ts *TextureSystem) Shutdown() {
	for id := range ts.resident {
		ts.Release(id)
	}
	for ts.pending.Len() > 0 {
		id, _ := ts.pending.Dequeue()
		delete(ts.rejected, id)
	}
	ts.rejected = make(map[metadata.TextureID]metadata.RejectReason)
	ts.retiring = nil
}

func (ts *TextureSystem) reject(id metadata.TextureID, reason metadata.RejectReason) {
	core.LogWarn("texture %d permanently rejected: %s", id, reason)
	ts.rejected[id] = reason
}

// classifyLockFailure sorts pixel-source failures into permanent rejections
// and transient conditions that retry on the next flush.
func classifyLockFailure(err error) (metadata.RejectReason, bool) {
	switch {
	case errors.Is(err, core.ErrUnsupportedFormat):
		return metadata.RejectUnsupportedFormat, true
	case errors.Is(err, core.ErrOversizeUpload):
		return metadata.RejectOversize, true
	case errors.Is(err, core.ErrMismatchedLayers):
		return metadata.RejectMismatchedLayers, true
	case errors.Is(err, core.ErrPixelsBusy):
		return 0, false
	default:
		return metadata.RejectDecodeFailed, true
	}
}

// validateBlob checks a locked blob against the upload domain and total
// staging capacity, returning the staging layout when usable.
func validateBlob(blob *metadata.PixelBlob, stagingCapacity uint64) (metadata.UploadLayout, metadata.RejectReason, bool) {
	if blob == nil || len(blob.Layers) == 0 || blob.Width == 0 || blob.Height == 0 {
		return metadata.UploadLayout{}, metadata.RejectDecodeFailed, false
	}
	if !blob.Format.Supported() {
		return metadata.UploadLayout{}, metadata.RejectUnsupportedFormat, false
	}

	layout := metadata.BuildUploadLayout(blob.Width, blob.Height, blob.Format, uint32(len(blob.Layers)))
	for _, pixels := range blob.Layers {
		if uint64(len(pixels)) != layout.LayerSize {
			return metadata.UploadLayout{}, metadata.RejectMismatchedLayers, false
		}
	}
	if layout.TotalSize > stagingCapacity {
		return metadata.UploadLayout{}, metadata.RejectOversize, false
	}
	return layout, 0, true
}
