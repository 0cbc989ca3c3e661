package engine

import (
	"github.com/spaghettifunk/rivet/engine/assets"
	"github.com/spaghettifunk/rivet/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Wired by the engine during initialization.
	Renderer *systems.RendererSystem
	Assets   *assets.AssetManager

	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(token systems.FrameToken, deltaTime float64) error
type Shutdown func() error
