package testbed

import (
	"fmt"

	"github.com/spaghettifunk/rivet/engine"
	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer/metadata"
	"github.com/spaghettifunk/rivet/engine/systems"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	textures      []metadata.TextureID
	offscreen     metadata.TextureID
	offscreenMade bool

	frameCount uint64
}

func NewTestGame() (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:       "Rivet Testbed",
				ConfigPath: "testbed.toml",
				LogLevel:   core.DebugLevel,
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.Renderer == nil {
		return fmt.Errorf("the engine has not wired the renderer system yet")
	}

	state := g.State.(*gameState)

	// Queue a handful of textures; they become resident over the next
	// frames as the staging budget allows.
	for _, name := range []string{
		"assets/textures/cobblestone.png",
		"assets/textures/paving.png",
		"assets/textures/paving2.png",
	} {
		handle := g.Assets.RegisterTexture(name)
		id, ok := g.Renderer.RequestUpload(handle)
		if !ok {
			core.LogWarn("invalid texture handle for %s", name)
			continue
		}
		state.textures = append(state.textures, id)
	}

	return nil
}

func (g *TestGame) Update(token systems.FrameToken, deltaTime float64) error {
	state := g.State.(*gameState)
	state.frameCount++

	// Draw path: ask for slots and record usage. Textures still uploading
	// resolve to the fallback slot until they land.
	for _, id := range state.textures {
		slot := g.Renderer.Slots.RequestSlot(token, id)
		g.Renderer.Bindings.MarkUsed(id, token.Frame(), token.SubmitSerial())
		if state.frameCount == 1 {
			core.LogDebug("texture %d draws with slot %d this frame", id, slot)
		}
	}

	// Carve out an offscreen target once the pipeline is warm.
	if !state.offscreenMade && state.frameCount == 3 {
		state.offscreen = metadata.TextureID(4096)
		_, err := g.Renderer.CreateRenderTarget(token, state.offscreen, metadata.RenderTargetSpec{
			Name:    "offscreen-color",
			Width:   512,
			Height:  512,
			Format:  metadata.FormatRGBA8,
			Sampled: true,
		})
		if err != nil {
			return err
		}
		state.offscreenMade = true
		g.Renderer.Slots.RequestSlot(token, state.offscreen)
	}

	if state.offscreenMade {
		g.Renderer.RenderTargets.MarkUsed(state.offscreen, token.SubmitSerial())
	}

	// Periodically log throughput.
	if state.frameCount%300 == 0 {
		fps, frameTime := core.MetricsFrame()
		core.LogInfo("FPS: %5.1f (%4.1fms), pending uploads: %d, dynamic slots: %d",
			fps, frameTime, g.Renderer.Textures.PendingCount(), g.Renderer.Slots.DynamicSlotsInUse())
	}

	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)

	for _, id := range state.textures {
		g.Renderer.ReleaseTexture(id)
	}

	return nil
}
