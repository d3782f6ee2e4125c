package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
	"github.com/spaghettifunk/restir/engine/renderer/rendertest"
)

var spirvHeader = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

// testConfig points the shader directory at a temporary one holding a
// prebuilt restir shader, with a compiler that does not exist.
func testConfig(t *testing.T) ApplicationConfig {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "restir.comp")
	require.NoError(t, os.WriteFile(src, []byte("#version 450\nvoid main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(src+".spv", spirvHeader, 0o644))

	cfg := DefaultConfig()
	cfg.StartWidth = 64
	cfg.StartHeight = 32
	cfg.Frames = 3
	cfg.MetricsInterval = 0
	cfg.Shaders.Dir = dir
	cfg.Shaders.Compiler = "restir-test-no-such-compiler"
	cfg.Restir.ReservoirSize = 2
	return cfg
}

func newTestEngine(t *testing.T, cfg ApplicationConfig) (*Engine, *rendertest.Backend) {
	t.Helper()
	backend := rendertest.NewBackend()
	e, err := New(cfg, WithBackend(backend))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, backend
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartWidth = 0
	_, err := New(cfg, WithBackend(rendertest.NewBackend()))
	assert.ErrorIs(t, err, core.ErrInvalidExtent)
}

func TestEngineRunsConfiguredFrames(t *testing.T) {
	e, backend := newTestEngine(t, testConfig(t))

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(3), e.Frames())
	assert.Equal(t, uint64(3), backend.Submitted)
	assert.Equal(t, uint64(3), e.Renderer().FrameIndex())
	assert.NotEmpty(t, backend.Dispatches)
	assert.Empty(t, backend.Errors)
}

func TestEngineRunRequiresInitialize(t *testing.T) {
	e, err := New(testConfig(t), WithBackend(rendertest.NewBackend()))
	require.NoError(t, err)
	assert.Error(t, e.Run())
	require.NoError(t, e.Shutdown())
}

func TestEngineAppliesResizeBetweenFrames(t *testing.T) {
	e, backend := newTestEngine(t, testConfig(t))
	waits := backend.WaitIdles

	ctx := core.EventContext{}
	ctx.Data.U32[0] = 40
	ctx.Data.U32[1] = 20
	e.Events().Fire(core.EVENT_CODE_RESIZED, nil, ctx)

	// Nothing changes until the loop reaches a frame boundary.
	assert.Equal(t, metadata.Extent2D{Width: 64, Height: 32}, e.GBuffer().Extent())

	require.NoError(t, e.Run())
	want := metadata.Extent2D{Width: 40, Height: 20}
	assert.Equal(t, want, e.GBuffer().Extent())
	assert.Equal(t, want, e.Restir().Extent())
	assert.Greater(t, backend.WaitIdles, waits)
	assert.Empty(t, backend.Errors)
}

func TestEngineResizeToCurrentExtentIsIgnored(t *testing.T) {
	e, backend := newTestEngine(t, testConfig(t))
	waits := backend.WaitIdles

	ctx := core.EventContext{}
	ctx.Data.U32[0] = 64
	ctx.Data.U32[1] = 32
	e.Events().Fire(core.EVENT_CODE_RESIZED, nil, ctx)

	require.NoError(t, e.Run())
	assert.Equal(t, waits, backend.WaitIdles)
}

func TestEngineStopsOnQuit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Frames = 0
	e, backend := newTestEngine(t, cfg)
	backend.OnDispatch = func(rendertest.Dispatch) {
		e.Events().Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
	}

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(1), e.Frames())
}

func TestEngineReloadsPipelineOnShaderChange(t *testing.T) {
	e, backend := newTestEngine(t, testConfig(t))
	require.Equal(t, uint64(1), e.Restir().PipelineGeneration())

	ctx := core.EventContext{}
	ctx.Data.Paths = []string{e.restirSource()}
	e.Events().Fire(core.EVENT_CODE_SHADER_CHANGED, nil, ctx)
	assert.Equal(t, uint64(2), e.Restir().PipelineGeneration())
	assert.Equal(t, 1, backend.LivePipelines())

	// Unrelated sources leave the pipeline alone.
	ctx.Data.Paths = []string{filepath.Join(e.config.Shaders.Dir, "tonemap.comp")}
	e.Events().Fire(core.EVENT_CODE_SHADER_CHANGED, nil, ctx)
	assert.Equal(t, uint64(2), e.Restir().PipelineGeneration())

	require.NoError(t, e.Run())
	assert.Empty(t, backend.Errors)
}

func TestEngineKeepsPipelineWhenReloadFails(t *testing.T) {
	e, _ := newTestEngine(t, testConfig(t))
	before := e.Restir().Pipeline()

	// A corrupt binary cannot be turned into a pipeline.
	bin := e.restirSource() + ".spv"
	require.NoError(t, os.WriteFile(bin, []byte("nope"), 0o644))

	ctx := core.EventContext{}
	ctx.Data.Paths = []string{e.restirSource()}
	e.Events().Fire(core.EVENT_CODE_SHADER_CHANGED, nil, ctx)

	assert.Same(t, before, e.Restir().Pipeline())
	assert.Equal(t, uint64(1), e.Restir().PipelineGeneration())
	require.NoError(t, e.Run())
}

func TestEngineHotReloadDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Shaders.HotReload = false
	e, _ := newTestEngine(t, cfg)

	ctx := core.EventContext{}
	ctx.Data.Paths = []string{e.restirSource()}
	e.Events().Fire(core.EVENT_CODE_SHADER_CHANGED, nil, ctx)
	assert.Equal(t, uint64(1), e.Restir().PipelineGeneration())
}

func TestEngineShutdownReleasesEverything(t *testing.T) {
	backend := rendertest.NewBackend()
	e, err := New(testConfig(t), WithBackend(backend))
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())

	require.NoError(t, e.Shutdown())
	assert.Equal(t, 0, backend.Live())
	assert.True(t, backend.IsShutdown())
	assert.Empty(t, backend.Errors)

	// A second shutdown is a no-op.
	require.NoError(t, e.Shutdown())
}
