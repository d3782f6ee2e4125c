package rendertest

import (
	"fmt"

	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// GBuffer stands in for a geometry pass. Render tags every output with a
// caller supplied label instead of rasterizing anything.
type GBuffer struct {
	backend  *Backend
	registry *renderer.Registry
	extent   metadata.Extent2D
	outputs  map[metadata.GBufferOutput]*renderer.Owned[metadata.Image]
}

func NewGBuffer(backend *Backend, registry *renderer.Registry, extent metadata.Extent2D) (*GBuffer, error) {
	g := &GBuffer{backend: backend, registry: registry}
	if err := g.Resize(extent); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GBuffer) Resize(extent metadata.Extent2D) error {
	outputs := make(map[metadata.GBufferOutput]*renderer.Owned[metadata.Image], len(metadata.GBufferOutputs))
	for _, name := range metadata.GBufferOutputs {
		usage := metadata.ImageUsageTransferSrc | metadata.ImageUsageSampled | metadata.ImageUsageStorage
		if name.Format().IsDepth() {
			usage = metadata.ImageUsageTransferSrc | metadata.ImageUsageSampled | metadata.ImageUsageDepthAttachment
		}
		img, err := g.registry.CreateImage(metadata.ImageDesc{
			Name:   "gbuffer." + string(name),
			Extent: extent,
			Format: name.Format(),
			Usage:  usage,
		})
		if err != nil {
			for _, o := range outputs {
				o.Release()
			}
			return err
		}
		outputs[name] = img
	}
	g.Release()
	g.outputs = outputs
	g.extent = extent
	return nil
}

func (g *GBuffer) Release() {
	for _, o := range g.outputs {
		o.Release()
	}
	g.outputs = nil
}

func (g *GBuffer) Output(name metadata.GBufferOutput) *metadata.Image {
	return g.outputs[name].Get()
}

func (g *GBuffer) Extent() metadata.Extent2D {
	return g.extent
}

// Render moves every output into its attachment layout and tags it "<label>:<output>".
func (g *GBuffer) Render(frame *renderer.FrameInfo, label string) {
	for _, name := range metadata.GBufferOutputs {
		img := g.outputs[name].Get()
		layout := metadata.ImageLayoutColorAttachment
		if img.Desc.Format.IsDepth() {
			layout = metadata.ImageLayoutDepthAttachment
		}
		frame.Layouts.Transition(frame.Stream, img, layout)
		g.backend.Fill(img, Tag(label, name))
	}
}

// Tag is the content tag Render gives an output.
func Tag(label string, name metadata.GBufferOutput) string {
	return fmt.Sprintf("%s:%s", label, name)
}
