package views

import (
	"fmt"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// RenderViewGBuffer owns the geometry pass outputs. Without a raster
// pipeline it clears every output each frame and leaves it in its
// attachment layout, exactly where a geometry pass would.
type RenderViewGBuffer struct {
	registry *renderer.Registry
	layouts  *renderer.ImageLayoutCache
	extent   metadata.Extent2D
	outputs  map[metadata.GBufferOutput]*renderer.Owned[metadata.Image]

	ClearColor [4]float32
	ClearDepth float32
}

func NewRenderViewGBuffer(registry *renderer.Registry, layouts *renderer.ImageLayoutCache) *RenderViewGBuffer {
	return &RenderViewGBuffer{
		registry:   registry,
		layouts:    layouts,
		ClearColor: [4]float32{0, 0, 0, 1},
		ClearDepth: 1.0,
	}
}

func gbufferUsage(name metadata.GBufferOutput) metadata.ImageUsage {
	usage := metadata.ImageUsageTransferSrc | metadata.ImageUsageTransferDst | metadata.ImageUsageSampled
	if name.Format().IsDepth() {
		return usage | metadata.ImageUsageDepthAttachment
	}
	return usage | metadata.ImageUsageStorage | metadata.ImageUsageColorAttachment
}

func attachmentLayout(img *metadata.Image) metadata.ImageLayout {
	if img.Desc.Format.IsDepth() {
		return metadata.ImageLayoutDepthAttachment
	}
	return metadata.ImageLayoutColorAttachment
}

func (v *RenderViewGBuffer) OnCreateRenderView(extent metadata.Extent2D) error {
	return v.OnResizeRenderView(extent)
}

// OnResizeRenderView replaces every output with one at extent. The device
// must be idle. On failure the current outputs are kept.
func (v *RenderViewGBuffer) OnResizeRenderView(extent metadata.Extent2D) error {
	if extent.IsZero() {
		return fmt.Errorf("%w: gbuffer at %s", core.ErrInvalidExtent, extent)
	}
	outputs := make(map[metadata.GBufferOutput]*renderer.Owned[metadata.Image], len(metadata.GBufferOutputs))
	for _, name := range metadata.GBufferOutputs {
		img, err := v.registry.CreateImage(metadata.ImageDesc{
			Name:   "gbuffer." + string(name),
			Extent: extent,
			Format: name.Format(),
			Usage:  gbufferUsage(name),
		})
		if err != nil {
			for _, o := range outputs {
				o.Release()
			}
			return err
		}
		outputs[name] = img
	}
	v.OnDestroyRenderView()
	v.outputs = outputs
	v.extent = extent
	core.LogDebug("gbuffer outputs created at %s", extent)
	return nil
}

func (v *RenderViewGBuffer) OnDestroyRenderView() {
	for _, o := range v.outputs {
		if img := o.Get(); img != nil {
			v.layouts.Forget(img)
		}
		o.Release()
	}
	v.outputs = nil
}

// OnRenderRenderView records the clears of every output into frame.
func (v *RenderViewGBuffer) OnRenderRenderView(frame *renderer.FrameInfo) error {
	if v.outputs == nil {
		return core.ErrNotInitialized
	}
	for _, name := range metadata.GBufferOutputs {
		img := v.outputs[name].Get()
		frame.Layouts.Transition(frame.Stream, img, metadata.ImageLayoutTransferDst)
		if img.Desc.Format.IsDepth() {
			frame.Stream.ClearDepthImage(img, metadata.ImageLayoutTransferDst, v.ClearDepth)
		} else {
			frame.Stream.ClearColorImage(img, metadata.ImageLayoutTransferDst, v.ClearColor)
		}
		frame.Layouts.Transition(frame.Stream, img, attachmentLayout(img))
	}
	return nil
}

func (v *RenderViewGBuffer) Output(name metadata.GBufferOutput) *metadata.Image {
	o, ok := v.outputs[name]
	if !ok {
		return nil
	}
	return o.Get()
}

func (v *RenderViewGBuffer) Extent() metadata.Extent2D {
	return v.extent
}
