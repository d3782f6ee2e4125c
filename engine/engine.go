package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/restir/engine/assets"
	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/platform"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
	"github.com/spaghettifunk/restir/engine/renderer/restir"
	"github.com/spaghettifunk/restir/engine/renderer/views"
	"github.com/spaghettifunk/restir/engine/renderer/vulkan"
	"github.com/spaghettifunk/restir/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything it owned
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// Option customizes an Engine before it is initialized.
type Option func(*Engine)

// WithBackend renders through backend instead of Vulkan. No platform is
// started, so resizes only arrive through the event bus.
func WithBackend(backend renderer.Backend) Option {
	return func(e *Engine) {
		e.backend = backend
	}
}

// Engine runs the frame loop: the geometry pass clear followed by the
// resampling stage, with resizes and shader reloads applied between frames.
type Engine struct {
	currentStage Stage
	config       ApplicationConfig
	isRunning    atomic.Bool
	isSuspended  bool

	events        *core.EventBus
	platform      *platform.Platform
	diagnostics   *core.DiagnosticSink
	backend       renderer.Backend
	renderer      *renderer.Renderer
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	gbuffer       *views.RenderViewGBuffer
	restir        *restir.Stage

	clock          *core.Clock
	metrics        *core.Metrics
	lastTime       float64
	lastMetricsLog float64
	frames         uint64

	mu            sync.Mutex
	pendingResize *metadata.Extent2D
}

func New(config ApplicationConfig, options ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		currentStage: EngineStageUninitialized,
		config:       config,
		events:       core.NewEventBus(),
		diagnostics:  core.NewDiagnosticSink(config.Renderer.DiagnosticsCapacity),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.backend == nil {
		e.platform = platform.New(e.events)
		e.backend = vulkan.New(e.platform, vulkan.Options{
			ApplicationName: config.Name,
			FramesInFlight:  config.Renderer.FramesInFlight,
			Debug:           config.Renderer.Debug,
			Diagnostics:     e.diagnostics,
		})
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	e.assetManager = am

	e.renderer = renderer.New(e.backend)
	e.gbuffer = views.NewRenderViewGBuffer(e.renderer.Registry(), e.renderer.Layouts())
	return e, nil
}

// restirSource is the path of the resampling shader as the asset manager reports it.
func (e *Engine) restirSource() string {
	return filepath.Clean(filepath.Join(e.config.Shaders.Dir, e.config.Shaders.Restir))
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine cannot initialize while %s", e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	if err := core.SetLogLevel(e.config.LogLevel); err != nil {
		return err
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onQuit)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_SHADER_CHANGED, e, e.onShaderChanged)

	if e.platform != nil {
		if err := e.platform.Startup(e.config.Name,
			e.config.StartPosX,
			e.config.StartPosY,
			e.config.StartWidth,
			e.config.StartHeight,
			e.config.Headless); err != nil {
			return err
		}
	}

	if err := e.assetManager.Initialize(e.config.Shaders.Dir); err != nil {
		return err
	}

	sm, err := systems.NewSystemManager(systems.SystemManagerConfig{
		Camera: systems.CameraSystemConfig{
			MaxCameraCount: 8,
			LightCount:     e.config.Scene.LightCount,
			OrbitSpeed:     e.config.Scene.OrbitSpeed,
			OrbitRadius:    e.config.Scene.OrbitRadius,
		},
		Shader: systems.ShaderSystemConfig{
			Compiler: e.config.Shaders.Compiler,
		},
	}, e.assetManager, e.config.Extent())
	if err != nil {
		return err
	}
	e.systemManager = sm

	if err := sm.ShaderSystem.CompileAll(); err != nil {
		return err
	}

	if vr, ok := e.backend.(*vulkan.VulkanRenderer); ok {
		if err := vr.Initialize(); err != nil {
			return err
		}
	}

	if err := e.gbuffer.OnCreateRenderView(e.config.Extent()); err != nil {
		return err
	}

	e.restir = restir.NewStage(e.renderer.Registry(), e.renderer.Layouts(), restir.Collaborators{
		GBuffer: e.gbuffer,
		Scene:   sm.CameraSystem,
		Source:  sm.ShaderSystem.Pipeline("restir", e.restirSource()),
		Work:    restir.DispatchWork{GroupSize: e.config.Shaders.GroupSize},
	}, e.config.Restir.Options())
	if err := e.restir.Init(); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized at %s, %d frames in flight", e.config.Extent(), e.backend.FramesInFlight())
	return nil
}

// Run renders frames until Stop is called, the window closes or the
// configured frame count is reached. A frame that fails to record ends the
// loop with its error.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine cannot run while %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning.Load() {
		if e.platform != nil {
			e.platform.PumpMessages()
			if e.platform.ShouldClose() {
				e.isRunning.Store(false)
				break
			}
		}

		if err := e.frameBoundary(); err != nil {
			e.isRunning.Store(false)
			return err
		}

		if e.isSuspended {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.drawFrame(); err != nil {
			core.LogError("frame %d failed: %s", e.renderer.FrameIndex()-1, err)
			e.isRunning.Store(false)
			return err
		}

		e.systemManager.CameraSystem.Advance(delta)
		e.metrics.Update(delta)
		e.diagnostics.LogPending()
		if e.config.MetricsInterval > 0 && currentTime-e.lastMetricsLog >= e.config.MetricsInterval {
			fps, ms := e.metrics.Frame()
			core.LogInfo("frame %d: %.0f fps, %.3f ms", e.frames, fps, ms)
			e.lastMetricsLog = currentTime
		}
		e.lastTime = currentTime

		e.frames++
		if e.config.Frames > 0 && e.frames >= e.config.Frames {
			e.isRunning.Store(false)
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Stop ends Run after the current frame. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

// Frames is the number of frames Run rendered.
func (e *Engine) Frames() uint64 {
	return e.frames
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Restir() *restir.Stage {
	return e.restir
}

func (e *Engine) GBuffer() *views.RenderViewGBuffer {
	return e.gbuffer
}

func (e *Engine) Systems() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) drawFrame() error {
	frame, err := e.renderer.BeginFrame()
	if err != nil {
		return err
	}
	if err := e.gbuffer.OnRenderRenderView(frame); err != nil {
		return errors.Join(err, e.renderer.EndFrame())
	}
	if err := e.restir.RecordFrame(frame); err != nil {
		// The frame is still submitted so the backend stays balanced.
		return errors.Join(err, e.renderer.EndFrame())
	}
	return e.renderer.EndFrame()
}

// frameBoundary applies everything that must not happen while a frame is
// recorded: a queued resize and the reload of recompiled shaders.
func (e *Engine) frameBoundary() error {
	if err := e.applyResize(); err != nil {
		return err
	}
	e.collectShaderChanges()
	return nil
}

func (e *Engine) applyResize() error {
	e.mu.Lock()
	pending := e.pendingResize
	e.pendingResize = nil
	e.mu.Unlock()
	if pending == nil {
		return nil
	}
	extent := *pending
	if extent.IsZero() {
		if !e.isSuspended {
			core.LogInfo("window minimized, suspending rendering")
			e.isSuspended = true
		}
		return nil
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming rendering")
		e.isSuspended = false
	}
	if extent == e.gbuffer.Extent() {
		return nil
	}

	if err := e.renderer.WaitIdle(); err != nil {
		return err
	}
	if err := e.gbuffer.OnResizeRenderView(extent); err != nil {
		// Nothing has been replaced yet; keep rendering at the old extent.
		core.LogError("resize to %s failed: %s", extent, err)
		return nil
	}
	// The old geometry outputs are gone; stage resources bound to them
	// cannot be kept.
	if err := e.restir.OnResize(extent); err != nil {
		return fmt.Errorf("restir resize to %s: %w", extent, err)
	}
	e.systemManager.CameraSystem.Resize(extent)
	core.LogInfo("resized to %s", extent)
	return nil
}

func (e *Engine) collectShaderChanges() {
drain:
	for {
		select {
		case path, ok := <-e.assetManager.Changes():
			if !ok {
				break drain
			}
			e.systemManager.ShaderSystem.OnSourceChanged(path)
		default:
			break drain
		}
	}

	changed := e.systemManager.ShaderSystem.Recompiled()
	if len(changed) == 0 {
		return
	}
	ctx := core.EventContext{}
	for path := range changed {
		ctx.Data.Paths = append(ctx.Data.Paths, path)
	}
	e.events.Fire(core.EVENT_CODE_SHADER_CHANGED, e, ctx)
}

func (e *Engine) onQuit(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down")
	e.Stop()
	return true
}

func (e *Engine) onResized(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	extent := metadata.Extent2D{Width: data.Data.U32[0], Height: data.Data.U32[1]}
	core.LogDebug("window resize: %s", extent)
	e.mu.Lock()
	e.pendingResize = &extent
	e.mu.Unlock()
	return false
}

func (e *Engine) onShaderChanged(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
	if !e.config.Shaders.HotReload || e.restir == nil {
		return false
	}
	rebuilt, err := e.restir.OnShaderSourceChanged(restir.NewChangedSources(data.Data.Paths...))
	if err != nil {
		core.LogError("pipeline reload failed, keeping the previous one: %s", err)
		return false
	}
	if rebuilt {
		core.LogInfo("pipeline reloaded after %d shader change(s)", len(data.Data.Paths))
	}
	return false
}

// Shutdown releases everything in reverse order of creation. The device is
// idle before any GPU resource is released.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.Stop()

	var errs []error
	if e.systemManager != nil {
		errs = append(errs, e.systemManager.Shutdown())
	}
	errs = append(errs, e.assetManager.Shutdown())

	if err := e.renderer.WaitIdle(); err != nil {
		errs = append(errs, err)
	}
	if e.restir != nil {
		e.restir.Destroy()
	}
	e.gbuffer.OnDestroyRenderView()
	errs = append(errs, e.renderer.Shutdown())

	e.diagnostics.LogPending()
	e.diagnostics.Close()

	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	e.events.Shutdown()
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}
