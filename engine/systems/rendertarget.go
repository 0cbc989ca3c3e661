package systems

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

/**
 * @brief RenderTargetSystem registers GPU-created images that are rendered
 * into rather than uploaded. Ownership is disjoint from the residency
 * ledger: an identity is a render target exactly when Lookup finds it, and
 * entries are pinned — never eviction candidates — for as long as they
 * exist. Image and metadata live in one owned record, so neither can exist
 * without the other.
 */
type RenderTargetSystem struct {
	backend  renderer.RendererBackend
	releases *DeferredReleaseQueue

	entries map[metadata.TextureID]*metadata.RenderTargetEntry
}

func NewRenderTargetSystem(backend renderer.RendererBackend, releases *DeferredReleaseQueue) (*RenderTargetSystem, error) {
	if backend == nil || releases == nil {
		err := fmt.Errorf("func NewRenderTargetSystem - backend and releases must be set")
		core.LogError(err.Error())
		return nil, err
	}
	return &RenderTargetSystem{
		backend:  backend,
		releases: releases,
		entries:  make(map[metadata.TextureID]*metadata.RenderTargetEntry),
	}, nil
}

// Create allocates the GPU image and registers its metadata as a single
// unit. Creation is a safe-point operation: targets come and go only
// between frames.
func (rts *RenderTargetSystem) Create(token FrameToken, id metadata.TextureID, spec metadata.RenderTargetSpec) (*metadata.RenderTargetEntry, error) {
	requireFrameToken(token, "RenderTargetSystem.Create")

	if _, exists := rts.entries[id]; exists {
		return nil, fmt.Errorf("render target %d already exists; release it before reusing the identity", id)
	}
	if spec.Width == 0 || spec.Height == 0 {
		return nil, fmt.Errorf("render target %d must have a non-zero extent", id)
	}
	if spec.MipLevels == 0 {
		spec.MipLevels = 1
	}

	gpu, err := rts.backend.RenderTargetCreate(spec)
	if err != nil {
		return nil, fmt.Errorf("creating render target %d (%s): %w", id, spec.Name, err)
	}

	entry := &metadata.RenderTargetEntry{
		ID:             id,
		DebugName:      uuid.New().String(),
		Spec:           spec,
		GPU:            gpu,
		LastUsedSerial: token.SubmitSerial(),
	}
	rts.entries[id] = entry

	core.LogDebug("created render target '%s' (%s) %dx%d", spec.Name, entry.DebugName, spec.Width, spec.Height)
	return entry, nil
}

// Lookup returns the entry for an identity. Absence is the only "not a
// render target" signal.
func (rts *RenderTargetSystem) Lookup(id metadata.TextureID) (*metadata.RenderTargetEntry, bool) {
	entry, ok := rts.entries[id]
	return entry, ok
}

// MarkUsed stamps the target with the submission that will reference it.
func (rts *RenderTargetSystem) MarkUsed(id metadata.TextureID, submitSerial uint64) {
	if entry, ok := rts.entries[id]; ok {
		entry.LastUsedSerial = submitSerial
	}
}

// Destroy removes the entry and hands the GPU unit to the deferred release
// queue, stamped so it outlives any command buffer still rendering to it.
func (rts *RenderTargetSystem) Destroy(token FrameToken, id metadata.TextureID) {
	requireFrameToken(token, "RenderTargetSystem.Destroy")

	entry, ok := rts.entries[id]
	if !ok {
		return
	}
	delete(rts.entries, id)

	retireAt := entry.LastUsedSerial
	if token.SubmitSerial() > retireAt {
		retireAt = token.SubmitSerial()
	}
	gpu := entry.GPU
	rts.releases.Enqueue(retireAt, func() {
		rts.backend.RenderTargetDestroy(gpu)
	})
}

// Count returns the number of live render targets.
func (rts *RenderTargetSystem) Count() int {
	return len(rts.entries)
}

// Shutdown hands every remaining target to the deferred release queue.
func (rts *RenderTargetSystem) Shutdown() {
	for id, entry := range rts.entries {
		gpu := entry.GPU
		rts.releases.Enqueue(entry.LastUsedSerial, func() {
			rts.backend.RenderTargetDestroy(gpu)
		})
		delete(rts.entries, id)
	}
}
