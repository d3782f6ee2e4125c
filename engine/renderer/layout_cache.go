package renderer

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

type layoutUse struct {
	stage  metadata.PipelineStageFlags
	access metadata.AccessFlags
}

// usage maps a layout to the stage and access that touch an image while it
// sits in that layout. It supplies both halves of every barrier.
var usage = map[metadata.ImageLayout]layoutUse{
	metadata.ImageLayoutUndefined:       {metadata.StageTopOfPipe, metadata.AccessNone},
	metadata.ImageLayoutGeneral:         {metadata.StageComputeShader, metadata.AccessShaderRead | metadata.AccessShaderWrite},
	metadata.ImageLayoutTransferSrc:     {metadata.StageTransfer, metadata.AccessTransferRead},
	metadata.ImageLayoutTransferDst:     {metadata.StageTransfer, metadata.AccessTransferWrite},
	metadata.ImageLayoutShaderReadOnly:  {metadata.StageComputeShader, metadata.AccessShaderRead},
	metadata.ImageLayoutDepthReadOnly:   {metadata.StageComputeShader, metadata.AccessShaderRead},
	metadata.ImageLayoutColorAttachment: {metadata.StageColorAttachmentOutput, metadata.AccessColorAttachmentWrite},
	metadata.ImageLayoutDepthAttachment: {metadata.StageLateFragmentTests, metadata.AccessDepthAttachmentWrite},
}

// ImageLayoutCache remembers the layout each image was last transitioned to,
// so callers only name the layout they need next.
type ImageLayoutCache struct {
	layouts map[uuid.UUID]metadata.ImageLayout
}

func NewImageLayoutCache() *ImageLayoutCache {
	return &ImageLayoutCache{
		layouts: make(map[uuid.UUID]metadata.ImageLayout),
	}
}

// Get returns the tracked layout, Undefined for unknown images.
func (c *ImageLayoutCache) Get(image *metadata.Image) metadata.ImageLayout {
	return c.layouts[image.ID]
}

// Set records a layout change made outside Transition, for example by a render pass.
func (c *ImageLayoutCache) Set(image *metadata.Image, layout metadata.ImageLayout) {
	c.layouts[image.ID] = layout
}

func (c *ImageLayoutCache) Forget(image *metadata.Image) {
	delete(c.layouts, image.ID)
}

// Barrier builds the barrier moving image from its tracked layout to layout
// and records the new layout.
func (c *ImageLayoutCache) Barrier(image *metadata.Image, layout metadata.ImageLayout) ImageBarrier {
	old := c.Get(image)
	src, dst := usage[old], usage[layout]
	c.layouts[image.ID] = layout
	return ImageBarrier{
		Image:     image,
		OldLayout: old,
		NewLayout: layout,
		SrcStage:  src.stage,
		DstStage:  dst.stage,
		SrcAccess: src.access,
		DstAccess: dst.access,
	}
}

// Transition records the barrier into stream. Images already resting in the
// requested read-only layout are skipped.
func (c *ImageLayoutCache) Transition(stream CommandStream, image *metadata.Image, layout metadata.ImageLayout) {
	if c.Get(image) == layout && layout.ReadOnly() {
		return
	}
	stream.ImageBarrier(c.Barrier(image, layout))
}
