package restir

import (
	"github.com/spaghettifunk/restir/engine/math"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// GBuffer exposes the geometry pass outputs at the current resolution.
type GBuffer interface {
	Output(name metadata.GBufferOutput) *metadata.Image
	Extent() metadata.Extent2D
}

// Scene supplies the camera and light data written into FrameConfig.
type Scene interface {
	// PreviousViewProjection is the projection * view matrix of the last frame.
	PreviousViewProjection() math.Mat4
	CameraPosition() math.Vec3
	LightCount() uint32
}

// PipelineSource builds the stage's compute pipeline from shader sources.
type PipelineSource interface {
	// Sources lists the shader source paths the pipeline is built from.
	Sources() []string
	// PipelineConfig loads the current compiled code and describes the pipeline.
	PipelineConfig(layout *metadata.BindingLayout, pushConstantSize uint32) (metadata.PipelineConfig, error)
}

// ShaderChangeSet answers whether a shader source was recompiled.
type ShaderChangeSet interface {
	HasBeenRecompiled(path string) bool
}

// ChangedSources is a ShaderChangeSet backed by a set of paths.
type ChangedSources map[string]struct{}

func NewChangedSources(paths ...string) ChangedSources {
	c := make(ChangedSources, len(paths))
	for _, p := range paths {
		c[p] = struct{}{}
	}
	return c
}

func (c ChangedSources) HasBeenRecompiled(path string) bool {
	_, ok := c[path]
	return ok
}

// Pass is what the stage has bound when Work.Execute runs.
type Pass struct {
	Pipeline *metadata.Pipeline
	Extent   metadata.Extent2D
	Read     *metadata.Buffer
	Write    *metadata.Buffer
}

// Work is the compute work the stage drives each frame.
type Work interface {
	// Prepare runs last in the Preparing phase.
	Prepare(frame *renderer.FrameInfo) error
	// Execute records the work. Pipeline, binding table and push constants are bound.
	Execute(frame *renderer.FrameInfo, pass *Pass) error
}

// DispatchWork covers the extent with one invocation per pixel.
type DispatchWork struct {
	// GroupSize is the square workgroup edge of the shader, 8 when zero.
	GroupSize uint32
}

func (d DispatchWork) Prepare(frame *renderer.FrameInfo) error {
	return nil
}

func (d DispatchWork) Execute(frame *renderer.FrameInfo, pass *Pass) error {
	g := d.GroupSize
	if g == 0 {
		g = 8
	}
	frame.Stream.Dispatch((pass.Extent.Width+g-1)/g, (pass.Extent.Height+g-1)/g, 1)
	return nil
}
