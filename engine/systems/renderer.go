package systems

import (
	"fmt"

	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
)

/** @brief The configuration for the renderer frame orchestrator. */
type RendererSystemConfig struct {
	/** @brief Total bindless slot count, reserved slots included. */
	MaxBindlessSlots uint32
}

/**
 * @brief RendererSystem owns the per-frame choreography of the texture
 * systems. Everything the frame/presentation loop needs to call lives
 * here; everything the draw path may touch is exposed through Bindings.
 *
 * Per-frame order, at the frame-start safe point:
 *   1. collect the deferred release queue against the confirmed serial
 *   2. reset the staging arena
 *   3. process soft-deleted retirements
 *   4. flush pending uploads
 *   5. retry deferred bindless slot requests
 */
type RendererSystem struct {
	backend renderer.RendererBackend
	pixels  renderer.PixelSource

	Textures      *TextureSystem
	Slots         *BindlessSystem
	RenderTargets *RenderTargetSystem
	Bindings      *TextureBindings

	releases *DeferredReleaseQueue

	// Invalidations arrive from the asset watcher goroutine and are drained
	// only at the safe point; the watcher never touches ledger state.
	invalidations chan metadata.TextureID

	// Built-in textures occupying the reserved slots.
	fallbackGPU    *metadata.TextureGPU
	defaultBaseGPU *metadata.TextureGPU
	defaultNormGPU *metadata.TextureGPU
	defaultSpecGPU *metadata.TextureGPU

	frameOrdinal uint64
	inFrame      bool
}

func NewRendererSystem(config *RendererSystemConfig, backend renderer.RendererBackend, pixels renderer.PixelSource) (*RendererSystem, error) {
	if config.MaxBindlessSlots == 0 {
		config.MaxBindlessSlots = DefaultMaxSlots
	}

	releases := NewDeferredReleaseQueue()

	ts, err := NewTextureSystem(backend, pixels, releases)
	if err != nil {
		return nil, err
	}
	rts, err := NewRenderTargetSystem(backend, releases)
	if err != nil {
		return nil, err
	}
	bs, err := NewBindlessSystem(&BindlessSystemConfig{MaxSlots: config.MaxBindlessSlots}, backend, ts, rts)
	if err != nil {
		return nil, err
	}

	return &RendererSystem{
		backend:       backend,
		pixels:        pixels,
		Textures:      ts,
		Slots:         bs,
		RenderTargets: rts,
		Bindings:      NewTextureBindings(ts, bs),
		releases:      releases,
		invalidations: make(chan metadata.TextureID, 256),
	}, nil
}

// Initialize uploads the built-in fallback and default textures through the
// immediate path and plants them in the reserved slots. Must run before the
// first frame.
func (rs *RendererSystem) Initialize() error {
	builtins := []struct {
		slot  uint32
		rgba  [4]uint8
		store **metadata.TextureGPU
	}{
		{SlotFallback, [4]uint8{0, 0, 0, 255}, &rs.fallbackGPU},
		{SlotDefaultBase, [4]uint8{255, 255, 255, 255}, &rs.defaultBaseGPU},
		{SlotDefaultNormal, [4]uint8{128, 128, 255, 255}, &rs.defaultNormGPU},
		{SlotDefaultSpec, [4]uint8{0, 0, 0, 255}, &rs.defaultSpecGPU},
	}

	for _, b := range builtins {
		blob := &metadata.PixelBlob{
			Width:  1,
			Height: 1,
			Format: metadata.FormatRGBA8,
			Layers: [][]byte{b.rgba[:]},
		}
		gpu, err := rs.backend.TextureCreateImmediate(blob)
		if err != nil {
			return fmt.Errorf("creating built-in texture for slot %d: %w", b.slot, err)
		}
		*b.store = gpu
		rs.backend.WriteTextureSlot(b.slot, gpu)
	}
	return nil
}

// BeginFrame is the safe point. The presentation loop supplies the frame
// ordinal, the completion serial confirmed by the GPU, and the serial the
// upcoming submission will signal. The returned token is the capability
// every phase-restricted mutator demands.
func (rs *RendererSystem) BeginFrame(frameOrdinal, completedSerial, submitSerial uint64) FrameToken {
	if rs.inFrame {
		core.LogFatal("RendererSystem.BeginFrame called twice without EndFrame")
	}
	rs.inFrame = true
	rs.frameOrdinal = frameOrdinal

	token := FrameToken{
		frame:           frameOrdinal,
		completedSerial: completedSerial,
		submitSerial:    submitSerial,
		live:            true,
	}

	rs.releases.Collect(completedSerial)
	rs.backend.Staging().Reset()
	rs.Textures.SetSafeRetireSerial(submitSerial)
	rs.drainInvalidations()
	rs.processRetirements(token)
	rs.Textures.Flush(token)
	rs.Slots.RetryPending(token)

	return token
}

// EndFrame closes the frame opened by BeginFrame. Draw submission happens
// between the two; no slot mutation is possible in that window.
func (rs *RendererSystem) EndFrame(token FrameToken) {
	requireFrameToken(token, "RendererSystem.EndFrame")
	rs.inFrame = false
}

// RequestUpload resolves an external handle at the boundary and queues the
// texture for upload. Invalid handles never enter the ledger.
func (rs *RendererSystem) RequestUpload(externalHandle int32) (metadata.TextureID, bool) {
	id, ok := rs.pixels.ResolveIdentity(externalHandle)
	if !ok {
		core.LogWarn("RequestUpload called with invalid handle %d", externalHandle)
		return 0, false
	}
	rs.Textures.RequestUpload(id)
	return id, true
}

// ReleaseTexture removes every trace of an identity, mid-frame if need be.
// The handle may be reused for an unrelated texture on the very next call.
func (rs *RendererSystem) ReleaseTexture(id metadata.TextureID) {
	rs.Slots.ReleaseIdentity(id)
	rs.Textures.Release(id)
}

// DeleteTexture soft-deletes: the identity is torn down at the next safe
// point so the current frame's shaders keep a valid slot.
func (rs *RendererSystem) DeleteTexture(id metadata.TextureID) {
	rs.Textures.DeleteTexture(id)
}

// InvalidateTexture schedules a release from any goroutine (asset watcher).
// Applied at the next safe point.
func (rs *RendererSystem) InvalidateTexture(id metadata.TextureID) {
	select {
	case rs.invalidations <- id:
	default:
		core.LogWarn("invalidation queue full, dropping invalidation for texture %d", id)
	}
}

// CreateRenderTarget registers a GPU-created image under an identity.
func (rs *RendererSystem) CreateRenderTarget(token FrameToken, id metadata.TextureID, spec metadata.RenderTargetSpec) (*metadata.RenderTargetEntry, error) {
	return rs.RenderTargets.Create(token, id, spec)
}

// FrameOrdinal returns the ordinal of the frame currently being produced.
func (rs *RendererSystem) FrameOrdinal() uint64 {
	return rs.frameOrdinal
}

// Shutdown releases every tracked resource. The device must be idle; the
// deferred queue is flushed unconditionally, built-ins included.
func (rs *RendererSystem) Shutdown() {
	rs.Textures.Shutdown()
	rs.RenderTargets.Shutdown()

	for _, gpu := range []*metadata.TextureGPU{rs.fallbackGPU, rs.defaultBaseGPU, rs.defaultNormGPU, rs.defaultSpecGPU} {
		if gpu == nil {
			continue
		}
		g := gpu
		rs.releases.Enqueue(0, func() {
			rs.backend.TextureDestroy(g)
		})
	}
	rs.fallbackGPU, rs.defaultBaseGPU, rs.defaultNormGPU, rs.defaultSpecGPU = nil, nil, nil, nil

	rs.releases.Clear()
}

func (rs *RendererSystem) drainInvalidations() {
	for {
		select {
		case id := <-rs.invalidations:
			core.LogDebug("reloading texture %d after source invalidation", id)
			rs.ReleaseTexture(id)
			// Queue the fresh bytes; the flush later this frame picks it up.
			rs.Textures.RequestUpload(id)
		default:
			return
		}
	}
}

func (rs *RendererSystem) processRetirements(token FrameToken) {
	for _, id := range rs.Textures.TakeRetirements(token) {
		rs.Slots.ReleaseIdentity(id)
		rs.Textures.Release(id)
	}
}
