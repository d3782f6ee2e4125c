package restir

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
	"github.com/spaghettifunk/restir/engine/renderer/rendertest"
)

var (
	ext800  = metadata.Extent2D{Width: 800, Height: 600}
	ext1024 = metadata.Extent2D{Width: 1024, Height: 768}
)

func TestParitySelectsAlternatingTables(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	swap := h.stage.Swap()

	for f := uint64(0); f < 64; f++ {
		assert.Equal(t, int(f%2), swap.Select(f))
		if f > 0 {
			assert.NotEqual(t, swap.Select(f-1), swap.Select(f))
			assert.NotEqual(t, swap.BindingTable(f-1), swap.BindingTable(f))
			// What the previous frame wrote is what this frame reads.
			assert.Equal(t, swap.WriteReservoir(f-1), swap.ReadReservoir(f))
		}
		assert.NotEqual(t, swap.ReadReservoir(f), swap.WriteReservoir(f))
	}
}

func TestParityBindsTablesByFrame(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	for i := 0; i < 6; i++ {
		h.frame(t, fmt.Sprintf("f%d", i))
	}
	require.Len(t, h.backend.Dispatches, 6)
	for i, d := range h.backend.Dispatches {
		table := d.Tables[0]
		assert.Equal(t, h.stage.Swap().BindingTable(uint64(i)), table)
		read, write := bufferAt(table, BindingReservoirRead), bufferAt(table, BindingReservoirWrite)
		assert.Equal(t, h.stage.Swap().ReadReservoir(uint64(i)), read)
		assert.Equal(t, h.stage.Swap().WriteReservoir(uint64(i)), write)
	}
}

func bufferAt(table *metadata.BindingTable, slot uint32) *metadata.Buffer {
	for _, b := range table.Desc.Bindings {
		if b.Binding == slot {
			return b.Buffer
		}
	}
	return nil
}

func TestHistoryLagsOneFrame(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 32, Height: 32}, testOptions())
	var prev string
	checked := 0
	h.stage.StateMachine().OnTransition(func(frame uint64, from, to Phase) {
		if to != PhasePreparing || prev == "" {
			return
		}
		for _, e := range copyTable {
			assert.Equal(t, rendertest.Tag(prev, e.source), h.historyContents(e.slot), "frame %d slot %s", frame, e.slot)
		}
		checked++
	})
	h.backend.OnDispatch = func(d rendertest.Dispatch) {
		if prev == "" {
			return
		}
		// The work still sees the previous frame while it runs.
		assert.Equal(t, rendertest.Tag(prev, metadata.GBufferAlbedo), h.historyContents(HistoryAlbedo))
	}

	for i := 1; i <= 5; i++ {
		label := fmt.Sprintf("frame-%d", i)
		h.frame(t, label)
		prev = label
	}
	assert.Equal(t, 4, checked)
	for _, e := range copyTable {
		assert.Equal(t, rendertest.Tag("frame-5", e.source), h.historyContents(e.slot))
	}
}

func TestCaptureBarrierOrder(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 8, Height: 8}, testOptions())
	h.frame(t, "a")
	h.backend.Commands = nil
	h.frame(t, "b")

	want := []string{
		"barrier gbuffer.albedo ShaderReadOnly->TransferSrc",
		"barrier history.albedo ShaderReadOnly->TransferDst",
		"copy gbuffer.albedo->history.albedo",
		"barrier history.albedo TransferDst->ShaderReadOnly",
	}
	assertSubsequence(t, h.backend.Commands, want)

	wantDepth := []string{
		"barrier gbuffer.depth DepthReadOnly->TransferSrc",
		"barrier history.depth DepthReadOnly->TransferDst",
		"copy gbuffer.depth->history.depth",
		"barrier history.depth TransferDst->DepthReadOnly",
	}
	assertSubsequence(t, h.backend.Commands, wantDepth)
}

func assertSubsequence(t *testing.T, got, want []string) {
	t.Helper()
	start := -1
	for i, c := range got {
		if c == want[0] {
			start = i
			break
		}
	}
	require.GreaterOrEqual(t, start, 0, "missing %q in %v", want[0], got)
	require.LessOrEqual(t, start+len(want), len(got))
	assert.Equal(t, want, got[start:start+len(want)])
}

func TestPhaseTrace(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 8, Height: 8}, testOptions())
	re := regexp.MustCompile(`^Preparing,Bound,Executing,Capturing$`)
	for i := 0; i < 3; i++ {
		h.frame(t, fmt.Sprintf("f%d", i))
		assert.Regexp(t, re, h.stage.StateMachine().TraceString())
		assert.Equal(t, PhaseIdle, h.stage.StateMachine().Phase())
	}
}

func TestResizeIsIdempotent(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 64, Height: 32}, testOptions())
	h.frame(t, "f0")

	h.resize(t, metadata.Extent2D{Width: 128, Height: 64})
	liveAfterOne := h.renderer.Registry().Live()
	createdAfterOne := h.renderer.Registry().Created()
	read, hist := h.stage.Swap().ReadReservoir(0), h.stage.History().Image(HistoryNormal)

	require.NoError(t, h.stage.OnResize(metadata.Extent2D{Width: 128, Height: 64}))
	assert.Equal(t, liveAfterOne, h.renderer.Registry().Live())
	assert.Equal(t, createdAfterOne, h.renderer.Registry().Created())
	assert.Equal(t, liveAfterOne, h.backend.Live())
	assert.Same(t, read, h.stage.Swap().ReadReservoir(0))
	assert.Same(t, hist, h.stage.History().Image(HistoryNormal))
	assert.Equal(t, metadata.Extent2D{Width: 128, Height: 64}, h.stage.History().Extent())
}

func TestResizeRebuildsTablesWhenGeometryOutputsChange(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	h.frame(t, "f0")
	oldTable := h.stage.Swap().BindingTable(0)
	hist := h.stage.History().Image(HistoryAlbedo)

	h.resize(t, metadata.Extent2D{Width: 16, Height: 16})
	assert.NotSame(t, oldTable, h.stage.Swap().BindingTable(0))
	assert.Same(t, hist, h.stage.History().Image(HistoryAlbedo))
	h.frame(t, "f1")
}

func TestResizeRequiresMatchingGeometryBuffer(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	err := h.stage.OnResize(metadata.Extent2D{Width: 32, Height: 32})
	assert.ErrorIs(t, err, core.ErrExtentMismatch)
	assert.ErrorIs(t, h.stage.OnResize(metadata.Extent2D{}), core.ErrInvalidExtent)
}

func TestRecordFrameRejectsStaleResources(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	require.NoError(t, h.gbuffer.Resize(metadata.Extent2D{Width: 32, Height: 32}))

	f, err := h.renderer.BeginFrame()
	require.NoError(t, err)
	assert.ErrorIs(t, h.stage.RecordFrame(f), core.ErrExtentMismatch)
	require.NoError(t, h.renderer.EndFrame())
}

func TestResizeFailureKeepsCurrentResources(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	h.frame(t, "f0")
	read := h.stage.Swap().ReadReservoir(0)

	require.NoError(t, h.gbuffer.Resize(metadata.Extent2D{Width: 32, Height: 32}))
	live := h.renderer.Registry().Live()
	h.backend.Fail[renderer.ResourceBuffer] = true
	err := h.stage.OnResize(metadata.Extent2D{Width: 32, Height: 32})
	assert.ErrorIs(t, err, core.ErrResourceCreation)
	assert.Equal(t, live, h.renderer.Registry().Live())
	assert.Same(t, read, h.stage.Swap().ReadReservoir(0))
	assert.Equal(t, metadata.Extent2D{Width: 16, Height: 16}, h.stage.Extent())
}

func TestHotReloadIsolation(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	h.frame(t, "f0")
	pipeline := h.stage.Pipeline()
	tables := h.stage.Swap().BindingTable(0)
	reservoir := h.stage.Swap().ReadReservoir(0)
	history := h.stage.History().Image(HistoryDepth)

	rebuilt, err := h.stage.OnShaderSourceChanged(NewChangedSources(shaderOther))
	require.NoError(t, err)
	assert.False(t, rebuilt)
	assert.Same(t, pipeline, h.stage.Pipeline())
	assert.Equal(t, 1, h.source.builds)
	assert.Equal(t, uint64(1), h.stage.PipelineGeneration())

	rebuilt, err = h.stage.OnShaderSourceChanged(NewChangedSources(shaderOther, shaderRestir))
	require.NoError(t, err)
	assert.True(t, rebuilt)
	assert.NotSame(t, pipeline, h.stage.Pipeline())
	assert.Equal(t, 2, h.source.builds)
	assert.Equal(t, uint64(2), h.stage.PipelineGeneration())
	assert.Equal(t, 1, h.backend.LivePipelines())

	assert.Same(t, tables, h.stage.Swap().BindingTable(0))
	assert.Same(t, reservoir, h.stage.Swap().ReadReservoir(0))
	assert.Same(t, history, h.stage.History().Image(HistoryDepth))

	h.frame(t, "f1")
	last := h.backend.Dispatches[len(h.backend.Dispatches)-1]
	assert.Same(t, h.stage.Pipeline(), last.Pipeline)
}

func TestHotReloadFailureKeepsPipeline(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	pipeline := h.stage.Pipeline()
	h.backend.Fail[renderer.ResourcePipeline] = true

	rebuilt, err := h.stage.OnShaderSourceChanged(NewChangedSources(shaderRestir))
	assert.False(t, rebuilt)
	assert.ErrorIs(t, err, core.ErrResourceCreation)
	assert.Same(t, pipeline, h.stage.Pipeline())
	h.frame(t, "f0")
}

func TestDiscardFlagFollowsReservoirLifetime(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	discards := func() []bool {
		out := make([]bool, len(h.backend.Dispatches))
		for i, d := range h.backend.Dispatches {
			out[i] = DecodePushConstants(d.PushConstants).DiscardPrevFrameReservoir
		}
		return out
	}

	h.frame(t, "f0")
	h.frame(t, "f1")
	h.resize(t, metadata.Extent2D{Width: 24, Height: 24})
	h.frame(t, "f2")
	h.frame(t, "f3")
	assert.Equal(t, []bool{true, false, true, false}, discards())
}

func TestSeedDerivesFromFrameIndex(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 8, Height: 8}, testOptions())
	assert.Equal(t, h.stage.Seed(7), h.stage.Seed(7))
	assert.NotEqual(t, h.stage.Seed(7), h.stage.Seed(8))

	h.frame(t, "f0")
	got := DecodePushConstants(h.backend.Dispatches[0].PushConstants).Seed
	assert.Equal(t, h.stage.Seed(0), got)
}

func TestFrameConfigUploadedBeforeDispatch(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 40, Height: 20}, testOptions())
	var seen []byte
	h.backend.OnDispatch = func(d rendertest.Dispatch) {
		seen = h.backend.BufferData(h.stage.UniformBuffer())
	}
	h.frame(t, "f0")
	h.backend.Commands = nil
	h.frame(t, "f1")

	cfg := h.stage.Config()
	assert.Equal(t, uint32(1), cfg.Frame)
	assert.Equal(t, metadata.Extent2D{Width: 40, Height: 20}, cfg.ScreenSize)
	assert.Equal(t, uint32(4), cfg.ReservoirSize)
	assert.Equal(t, uint32(12), cfg.NumTriLights)
	assert.Equal(t, h.scene.prevVP, cfg.PrevViewProjection)

	want, err := cfg.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, want, seen)

	// The copy into the uniform buffer is fenced before compute reads it.
	assertSubsequence(t, h.backend.Commands, []string{
		"buffer-barrier restir.config",
		"copy-buffer restir.config.staging#1->restir.config 128",
		"buffer-barrier restir.config",
	})
}

func TestInitFailureReleasesEverything(t *testing.T) {
	for _, kind := range []renderer.ResourceKind{
		renderer.ResourceBindingLayout,
		renderer.ResourceBuffer,
		renderer.ResourcePipeline,
		renderer.ResourceImage,
		renderer.ResourceBindingTable,
	} {
		t.Run(kind.String(), func(t *testing.T) {
			backend := rendertest.NewBackend()
			r := renderer.New(backend)
			gb, err := rendertest.NewGBuffer(backend, r.Registry(), metadata.Extent2D{Width: 8, Height: 8})
			require.NoError(t, err)
			before := r.Registry().Live()

			backend.Fail[kind] = true
			stage := NewStage(r.Registry(), r.Layouts(), Collaborators{
				GBuffer: gb,
				Source:  &fakeSource{paths: []string{shaderRestir}},
			}, testOptions())
			err = stage.Init()
			assert.ErrorIs(t, err, core.ErrResourceCreation)
			assert.ErrorIs(t, err, rendertest.ErrInjected)
			assert.Equal(t, before, r.Registry().Live())
		})
	}
}

func TestInitRejectsBadOptions(t *testing.T) {
	backend := rendertest.NewBackend()
	r := renderer.New(backend)
	gb, err := rendertest.NewGBuffer(backend, r.Registry(), metadata.Extent2D{Width: 8, Height: 8})
	require.NoError(t, err)
	opts := testOptions()
	opts.ReservoirSize = 0
	stage := NewStage(r.Registry(), r.Layouts(), Collaborators{GBuffer: gb, Source: &fakeSource{}}, opts)
	assert.Error(t, stage.Init())

	f, err := r.BeginFrame()
	require.NoError(t, err)
	assert.ErrorIs(t, stage.RecordFrame(f), core.ErrNotInitialized)
}

func TestDestroyReleasesAllStageResources(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 8, Height: 8}, testOptions())
	h.frame(t, "f0")
	h.stage.Destroy()
	h.stage.Destroy()
	h.gbuffer.Release()
	assert.Equal(t, 0, h.renderer.Registry().Live())
	assert.Equal(t, 0, h.backend.Live())
	assert.Empty(t, h.backend.Errors)
}

// Initialize at 800x600 with K=4, run three frames, resize to 1024x768 and
// check that the fourth frame still sees the third frame's history.
func TestEndToEndResizeKeepsLastCapture(t *testing.T) {
	opts := testOptions()
	h := newHarness(t, ext800, opts)
	recordSize := ReservoirRecordSize(4)
	require.Equal(t, uint64(80), recordSize)

	assertSizes := func(extent metadata.Extent2D) {
		t.Helper()
		want := uint64(extent.Width) * uint64(extent.Height) * 4 * recordSize
		for f := uint64(0); f < 2; f++ {
			assert.Equal(t, want, h.stage.Swap().ReadReservoir(f).Desc.Size)
			assert.Equal(t, want, h.stage.Swap().WriteReservoir(f).Desc.Size)
		}
		for _, e := range copyTable {
			assert.Equal(t, extent, h.stage.History().Image(e.slot).Extent())
		}
	}

	for i := 1; i <= 3; i++ {
		h.frame(t, fmt.Sprintf("frame-%d", i))
		assertSizes(ext800)
	}
	_, captured := h.stage.Capture().LastCaptured()
	require.True(t, captured)

	h.resize(t, ext1024)

	preparedFrame4 := false
	h.stage.StateMachine().OnTransition(func(frame uint64, from, to Phase) {
		if to != PhasePreparing {
			return
		}
		preparedFrame4 = true
		assertSizes(ext1024)
		for _, e := range copyTable {
			assert.Equal(t, rendertest.Tag("frame-3", e.source), h.historyContents(e.slot), "slot %s", e.slot)
		}
	})
	h.frame(t, "frame-4")
	assert.True(t, preparedFrame4)
	assert.Equal(t, ext1024, h.stage.Config().ScreenSize)
	assertSizes(ext1024)
	for _, e := range copyTable {
		assert.Equal(t, rendertest.Tag("frame-4", e.source), h.historyContents(e.slot))
	}
}

func TestRecordFrameTwiceIsRejected(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 8, Height: 8}, testOptions())
	h.frame(t, "f0")

	f, err := h.renderer.BeginFrame()
	require.NoError(t, err)
	h.gbuffer.Render(f, "f1")
	require.NoError(t, h.stage.RecordFrame(f))
	assert.ErrorIs(t, h.stage.RecordFrame(f), core.ErrSequenceViolation)
	require.NoError(t, h.renderer.EndFrame())

	assert.Len(t, h.backend.Dispatches, 2)
	assert.Equal(t, PhaseIdle, h.stage.StateMachine().Phase())
	assert.Equal(t, "Preparing,Bound,Executing,Capturing", h.stage.StateMachine().TraceString())
	assert.Equal(t, rendertest.Tag("f1", metadata.GBufferAlbedo), h.historyContents(HistoryAlbedo))

	h.frame(t, "f2")
	assert.Equal(t, rendertest.Tag("f2", metadata.GBufferAlbedo), h.historyContents(HistoryAlbedo))
}

func TestCaptureRejectsMismatchedHistory(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	h.frame(t, "f0")
	require.NoError(t, h.gbuffer.Resize(metadata.Extent2D{Width: 32, Height: 32}))

	f, err := h.renderer.BeginFrame()
	require.NoError(t, err)
	h.gbuffer.Render(f, "f1")
	h.backend.Commands = nil
	err = h.stage.Capture().Capture(f, h.gbuffer)
	require.NoError(t, h.renderer.EndFrame())

	assert.ErrorIs(t, err, core.ErrExtentMismatch)
	for _, c := range h.backend.Commands {
		assert.NotContains(t, c, "copy", "nothing is recorded once validation fails")
	}
	for _, e := range copyTable {
		assert.Equal(t, rendertest.Tag("f0", e.source), h.historyContents(e.slot))
	}
	last, _ := h.stage.Capture().LastCaptured()
	assert.Equal(t, uint64(0), last)
}

func TestResizeClearsHistoryTheDeviceCannotScale(t *testing.T) {
	h := newHarness(t, metadata.Extent2D{Width: 16, Height: 16}, testOptions())
	h.backend.NoBlit[metadata.FormatD32Float] = true
	h.frame(t, "f0")
	h.frame(t, "f1")

	h.resize(t, metadata.Extent2D{Width: 24, Height: 24})

	capture := h.stage.Capture()
	for _, e := range copyTable {
		if e.slot == HistoryDepth {
			assert.Equal(t, "depth(1)", h.historyContents(e.slot))
			assert.False(t, capture.Valid(e.slot))
			continue
		}
		assert.Equal(t, rendertest.Tag("f1", e.source), h.historyContents(e.slot), "slot %s", e.slot)
		assert.True(t, capture.Valid(e.slot), "slot %s", e.slot)
	}
	assert.True(t, h.stage.Discarding())

	h.frame(t, "f2")
	last := h.backend.Dispatches[len(h.backend.Dispatches)-1]
	assert.True(t, DecodePushConstants(last.PushConstants).DiscardPrevFrameReservoir)
	assert.True(t, capture.Valid(HistoryDepth))
	assert.Equal(t, rendertest.Tag("f2", metadata.GBufferDepth), h.historyContents(HistoryDepth))
}
