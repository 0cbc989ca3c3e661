package engine

import (
	"fmt"

	"github.com/spaghettifunk/rivet/engine/assets"
	"github.com/spaghettifunk/rivet/engine/config"
	"github.com/spaghettifunk/rivet/engine/core"
	"github.com/spaghettifunk/rivet/engine/renderer/vulkan"
	"github.com/spaghettifunk/rivet/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool

	cfg          *config.Config
	assetManager *assets.AssetManager

	vkContext *vulkan.VulkanContext
	backend   *vulkan.VulkanRenderer
	renderer  *systems.RendererSystem

	clock    *core.Clock
	lastTime float64

	frameOrdinal uint64
	// Serial the next transfer submission will carry.
	submitSerial uint64
	// Highest serial the GPU has finished.
	completedSerial uint64
}

func New(g *Game) (*Engine, error) {
	cfg, err := config.Load(g.ApplicationConfig.ConfigPath)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if g.ApplicationConfig.Name != "" {
		cfg.AppName = g.ApplicationConfig.Name
	}

	core.Initialize(g.ApplicationConfig.LogLevel)

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	if err := core.MetricsInitialize(); err != nil {
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		cfg:          cfg,
		assetManager: am,
		clock:        core.NewClock(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	vkContext, err := vulkan.NewVulkanContext(e.cfg.AppName)
	if err != nil {
		return err
	}
	e.vkContext = vkContext

	backend, err := vulkan.NewVulkanRenderer(vkContext, vulkan.VulkanRendererConfig{
		StagingBudgetBytes: e.cfg.Renderer.StagingBudgetBytes,
		MaxBindlessSlots:   e.cfg.Renderer.MaxBindlessSlots,
	})
	if err != nil {
		return err
	}
	e.backend = backend

	if err := e.assetManager.Initialize(e.cfg.Assets.Dir, e.cfg.Assets.WatchForChanges); err != nil {
		return err
	}

	rendererSystem, err := systems.NewRendererSystem(&systems.RendererSystemConfig{
		MaxBindlessSlots: e.cfg.Renderer.MaxBindlessSlots,
	}, backend, e.assetManager)
	if err != nil {
		return err
	}
	e.renderer = rendererSystem

	if err := e.renderer.Initialize(); err != nil {
		return err
	}

	// Rewritten files refresh their GPU copy at the next frame boundary.
	e.assetManager.SetInvalidationHandler(e.renderer.InvalidateTexture)

	if err := e.preloadTextures(); err != nil {
		return err
	}

	e.gameInstance.Renderer = e.renderer
	e.gameInstance.Assets = e.assetManager

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// preloadTextures uploads the configured textures synchronously so they are
// resident before the first frame begins.
func (e *Engine) preloadTextures() error {
	for _, path := range e.cfg.Assets.Preload {
		handle := e.assetManager.RegisterTexture(path)
		id, ok := e.assetManager.ResolveIdentity(handle)
		if !ok {
			return fmt.Errorf("failed to resolve preload texture %s", path)
		}
		if err := e.renderer.Textures.Preload(id); err != nil {
			return err
		}
		core.LogInfo("preloaded texture %s", path)
	}
	return nil
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine must be initialized before running")
	}

	e.currentStage = EngineStageRunning
	e.isRunning = true
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		deltaTime := (currentTime - e.lastTime) / 1e9
		e.lastTime = currentTime

		if err := e.frame(deltaTime); err != nil {
			core.LogError("frame failed: %s", err.Error())
			e.isRunning = false
			break
		}

		core.MetricsUpdate(deltaTime)
	}

	return e.Shutdown()
}

// frame drives one full pass of the texture pipeline: open the transfer
// command buffer, run the frame-boundary maintenance, let the game record
// its usage, then submit the copies and advance the serials.
func (e *Engine) frame(deltaTime float64) error {
	e.frameOrdinal++

	if err := e.backend.BeginFrameTransfers(); err != nil {
		return err
	}

	token := e.renderer.BeginFrame(e.frameOrdinal, e.completedSerial, e.submitSerial+1)

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(token, deltaTime); err != nil {
			return err
		}
	}

	e.renderer.EndFrame(token)

	if err := e.backend.SubmitFrameTransfers(); err != nil {
		return err
	}

	// The submission is fence-waited, so its serial is complete as soon as
	// it returns.
	e.submitSerial++
	e.completedSerial = e.submitSerial
	return nil
}

func (e *Engine) Stop() {
	e.isRunning = false
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError(err.Error())
		}
	}

	if e.renderer != nil {
		e.renderer.Shutdown()
	}
	if e.backend != nil {
		e.backend.Shutdown()
	}
	if e.vkContext != nil {
		e.vkContext.Destroy()
	}
	e.assetManager.Shutdown()

	core.LogInfo("engine shut down")
	return nil
}
