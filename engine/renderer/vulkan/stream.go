package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// commandStream records into one command buffer. Commands that reference
// objects from another backend are dropped and reported; the stream has no
// error return of its own.
type commandStream struct {
	context *VulkanContext
	cmd     vk.CommandBuffer
}

func (s *commandStream) fail(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	core.LogError("vulkan command stream: %s", msg)
	if s.context.Diagnostics != nil {
		s.context.Diagnostics.Report(core.DiagnosticError, "vulkan", msg)
	}
}

func (s *commandStream) image(img *metadata.Image, op string) *VulkanImage {
	vi, ok := img.InternalData.(*VulkanImage)
	if !ok || vi.Handle == vk.NullImage {
		s.fail("%s: image %q is not a live vulkan image", op, img.Desc.Name)
		return nil
	}
	return vi
}

func (s *commandStream) buffer(buf *metadata.Buffer, op string) *VulkanBuffer {
	vb, ok := buf.InternalData.(*VulkanBuffer)
	if !ok || vb.Handle == vk.NullBuffer {
		s.fail("%s: buffer %q is not a live vulkan buffer", op, buf.Desc.Name)
		return nil
	}
	return vb
}

func (s *commandStream) pipeline(p *metadata.Pipeline, op string) *VulkanPipeline {
	vp, ok := p.InternalData.(*VulkanPipeline)
	if !ok || vp.Handle == vk.NullPipeline {
		s.fail("%s: pipeline %q is not a live vulkan pipeline", op, p.Config.Name)
		return nil
	}
	return vp
}

func (s *commandStream) ImageBarrier(barrier renderer.ImageBarrier) {
	vi := s.image(barrier.Image, "barrier")
	if vi == nil {
		return
	}
	b := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vulkanAccess(barrier.SrcAccess),
		DstAccessMask:       vulkanAccess(barrier.DstAccess),
		OldLayout:           vulkanImageLayout(barrier.OldLayout),
		NewLayout:           vulkanImageLayout(barrier.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               vi.Handle,
		SubresourceRange:    vi.subresourceRange(),
	}
	vk.CmdPipelineBarrier(s.cmd,
		vulkanStages(barrier.SrcStage), vulkanStages(barrier.DstStage),
		vk.DependencyFlags(0),
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{b})
}

func (s *commandStream) BufferBarrier(barrier renderer.BufferBarrier) {
	vb := s.buffer(barrier.Buffer, "buffer barrier")
	if vb == nil {
		return
	}
	b := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vulkanAccess(barrier.SrcAccess),
		DstAccessMask:       vulkanAccess(barrier.DstAccess),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              vb.Handle,
		Offset:              0,
		Size:                vk.DeviceSize(vk.WholeSize),
	}
	vk.CmdPipelineBarrier(s.cmd,
		vulkanStages(barrier.SrcStage), vulkanStages(barrier.DstStage),
		vk.DependencyFlags(0),
		0, nil,
		1, []vk.BufferMemoryBarrier{b},
		0, nil)
}

func (s *commandStream) CopyImage(src *metadata.Image, srcLayout metadata.ImageLayout, dst *metadata.Image, dstLayout metadata.ImageLayout) {
	si, di := s.image(src, "copy source"), s.image(dst, "copy destination")
	if si == nil || di == nil {
		return
	}
	if si.Width != di.Width || si.Height != di.Height {
		s.fail("copy %q->%q: extents %dx%d and %dx%d differ", src.Desc.Name, dst.Desc.Name, si.Width, si.Height, di.Width, di.Height)
		return
	}
	region := vk.ImageCopy{
		SrcSubresource: si.subresourceLayers(),
		DstSubresource: di.subresourceLayers(),
		Extent:         vk.Extent3D{Width: si.Width, Height: si.Height, Depth: 1},
	}
	vk.CmdCopyImage(s.cmd, si.Handle, vulkanImageLayout(srcLayout), di.Handle, vulkanImageLayout(dstLayout), 1, []vk.ImageCopy{region})
}

// BlitImage scales with nearest filtering. Callers check SupportsBlit first;
// a format the device cannot blit still leaves the destination cleared
// rather than recording an invalid command.
func (s *commandStream) BlitImage(src *metadata.Image, srcLayout metadata.ImageLayout, dst *metadata.Image, dstLayout metadata.ImageLayout) {
	si, di := s.image(src, "blit source"), s.image(dst, "blit destination")
	if si == nil || di == nil {
		return
	}
	device := s.context.Device
	if !device.SupportsBlit(si.Format) || !device.SupportsBlit(di.Format) {
		msg := fmt.Sprintf("format of %q cannot be blitted, clearing %q instead", src.Desc.Name, dst.Desc.Name)
		core.LogWarn("%s", msg)
		if s.context.Diagnostics != nil {
			s.context.Diagnostics.Report(core.DiagnosticWarning, "vulkan", msg)
		}
		if dst.Aspect() == metadata.ImageAspectDepth {
			s.ClearDepthImage(dst, dstLayout, 1.0)
		} else {
			s.ClearColorImage(dst, dstLayout, [4]float32{})
		}
		return
	}
	region := vk.ImageBlit{
		SrcSubresource: si.subresourceLayers(),
		SrcOffsets:     [2]vk.Offset3D{{}, {X: int32(si.Width), Y: int32(si.Height), Z: 1}},
		DstSubresource: di.subresourceLayers(),
		DstOffsets:     [2]vk.Offset3D{{}, {X: int32(di.Width), Y: int32(di.Height), Z: 1}},
	}
	vk.CmdBlitImage(s.cmd, si.Handle, vulkanImageLayout(srcLayout), di.Handle, vulkanImageLayout(dstLayout), 1, []vk.ImageBlit{region}, vk.FilterNearest)
}

func (s *commandStream) CopyBuffer(src, dst *metadata.Buffer, size uint64) {
	sb, db := s.buffer(src, "copy-buffer source"), s.buffer(dst, "copy-buffer destination")
	if sb == nil || db == nil {
		return
	}
	if size > sb.Size || size > db.Size {
		s.fail("copy-buffer %q->%q: size %d out of range", src.Desc.Name, dst.Desc.Name, size)
		return
	}
	vk.CmdCopyBuffer(s.cmd, sb.Handle, db.Handle, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}})
}

func (s *commandStream) ClearColorImage(img *metadata.Image, layout metadata.ImageLayout, color [4]float32) {
	vi := s.image(img, "clear")
	if vi == nil {
		return
	}
	var value vk.ClearColorValue
	*(*[4]float32)(unsafe.Pointer(&value)) = color
	vk.CmdClearColorImage(s.cmd, vi.Handle, vulkanImageLayout(layout), &value, 1, []vk.ImageSubresourceRange{vi.subresourceRange()})
}

func (s *commandStream) ClearDepthImage(img *metadata.Image, layout metadata.ImageLayout, depth float32) {
	vi := s.image(img, "clear depth")
	if vi == nil {
		return
	}
	value := vk.ClearDepthStencilValue{Depth: depth}
	vk.CmdClearDepthStencilImage(s.cmd, vi.Handle, vulkanImageLayout(layout), &value, 1, []vk.ImageSubresourceRange{vi.subresourceRange()})
}

func (s *commandStream) BindPipeline(pipeline *metadata.Pipeline) {
	if vp := s.pipeline(pipeline, "bind pipeline"); vp != nil {
		vk.CmdBindPipeline(s.cmd, vk.PipelineBindPointCompute, vp.Handle)
	}
}

func (s *commandStream) BindBindingTable(pipeline *metadata.Pipeline, set uint32, table *metadata.BindingTable) {
	vp := s.pipeline(pipeline, "bind table")
	vt, ok := table.InternalData.(*VulkanBindingTable)
	if !ok || vt.Set == nil {
		s.fail("bind table: %q is not a live vulkan binding table", table.Desc.Name)
		return
	}
	if vp == nil {
		return
	}
	vk.CmdBindDescriptorSets(s.cmd, vk.PipelineBindPointCompute, vp.PipelineLayout, set, 1, []vk.DescriptorSet{vt.Set}, 0, nil)
}

func (s *commandStream) PushConstants(pipeline *metadata.Pipeline, data []byte) {
	vp := s.pipeline(pipeline, "push constants")
	if vp == nil || len(data) == 0 {
		return
	}
	if uint32(len(data)) > vp.PushConstantSize {
		s.fail("push constants of %d bytes exceed the %d byte range of %q", len(data), vp.PushConstantSize, pipeline.Config.Name)
		return
	}
	vk.CmdPushConstants(s.cmd, vp.PipelineLayout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (s *commandStream) Dispatch(groupsX, groupsY, groupsZ uint32) {
	vk.CmdDispatch(s.cmd, groupsX, groupsY, groupsZ)
}

var _ renderer.CommandStream = (*commandStream)(nil)
