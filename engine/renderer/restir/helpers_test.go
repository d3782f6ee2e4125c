package restir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/restir/engine/math"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
	"github.com/spaghettifunk/restir/engine/renderer/rendertest"
)

const (
	shaderRestir = "shaders/restir.comp"
	shaderOther  = "shaders/tonemap.comp"
)

type fakeSource struct {
	paths  []string
	builds int
	err    error
}

func (f *fakeSource) Sources() []string {
	return f.paths
}

func (f *fakeSource) PipelineConfig(layout *metadata.BindingLayout, pushConstantSize uint32) (metadata.PipelineConfig, error) {
	if f.err != nil {
		return metadata.PipelineConfig{}, f.err
	}
	f.builds++
	return metadata.PipelineConfig{
		Name:             "restir",
		Code:             []byte{0x03, 0x02, 0x23, 0x07},
		Layouts:          []*metadata.BindingLayout{layout},
		PushConstantSize: pushConstantSize,
	}, nil
}

type fakeScene struct {
	prevVP math.Mat4
	eye    math.Vec3
	lights uint32
}

func (f *fakeScene) PreviousViewProjection() math.Mat4 { return f.prevVP }
func (f *fakeScene) CameraPosition() math.Vec3         { return f.eye }
func (f *fakeScene) LightCount() uint32                { return f.lights }

type harness struct {
	backend  *rendertest.Backend
	renderer *renderer.Renderer
	gbuffer  *rendertest.GBuffer
	source   *fakeSource
	scene    *fakeScene
	stage    *Stage
}

func newHarness(t *testing.T, extent metadata.Extent2D, opts Options) *harness {
	t.Helper()
	h := &harness{
		backend: rendertest.NewBackend(),
		source:  &fakeSource{paths: []string{shaderRestir}},
		scene: &fakeScene{
			prevVP: math.NewMat4Translation(math.NewVec3(1, 2, 3)),
			eye:    math.NewVec3(0, 1, 5),
			lights: 12,
		},
	}
	h.renderer = renderer.New(h.backend)
	gb, err := rendertest.NewGBuffer(h.backend, h.renderer.Registry(), extent)
	require.NoError(t, err)
	h.gbuffer = gb
	h.stage = NewStage(h.renderer.Registry(), h.renderer.Layouts(), Collaborators{
		GBuffer: h.gbuffer,
		Scene:   h.scene,
		Source:  h.source,
	}, opts)
	require.NoError(t, h.stage.Init())
	return h
}

// frame renders the geometry pass tagged with label and records the stage.
func (h *harness) frame(t *testing.T, label string) uint64 {
	t.Helper()
	f, err := h.renderer.BeginFrame()
	require.NoError(t, err)
	h.gbuffer.Render(f, label)
	require.NoError(t, h.stage.RecordFrame(f))
	require.NoError(t, h.renderer.EndFrame())
	require.Empty(t, h.backend.Errors)
	return f.Index
}

func (h *harness) resize(t *testing.T, extent metadata.Extent2D) {
	t.Helper()
	require.NoError(t, h.gbuffer.Resize(extent))
	require.NoError(t, h.stage.OnResize(extent))
	require.Empty(t, h.backend.Errors)
}

func (h *harness) historyContents(slot HistorySlot) string {
	return h.backend.Contents(h.stage.History().Image(slot))
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ReservoirSize = 4
	return opts
}
