package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

func vulkanFormat(f metadata.Format) vk.Format {
	switch f {
	case metadata.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.FormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat
	case metadata.FormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.FormatRG16Float:
		return vk.FormatR16g16Sfloat
	case metadata.FormatR32Uint:
		return vk.FormatR32Uint
	case metadata.FormatD32Float:
		return vk.FormatD32Sfloat
	}
	return vk.FormatUndefined
}

func vulkanImageLayout(l metadata.ImageLayout) vk.ImageLayout {
	switch l {
	case metadata.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case metadata.ImageLayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case metadata.ImageLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.ImageLayoutDepthReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case metadata.ImageLayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.ImageLayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	return vk.ImageLayoutUndefined
}

var accessBits = []struct {
	from metadata.AccessFlags
	to   vk.AccessFlagBits
}{
	{metadata.AccessShaderRead, vk.AccessShaderReadBit},
	{metadata.AccessShaderWrite, vk.AccessShaderWriteBit},
	{metadata.AccessTransferRead, vk.AccessTransferReadBit},
	{metadata.AccessTransferWrite, vk.AccessTransferWriteBit},
	{metadata.AccessUniformRead, vk.AccessUniformReadBit},
	{metadata.AccessHostWrite, vk.AccessHostWriteBit},
	{metadata.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{metadata.AccessDepthAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
}

func vulkanAccess(a metadata.AccessFlags) vk.AccessFlags {
	var out vk.AccessFlags
	for _, b := range accessBits {
		if a&b.from != 0 {
			out |= vk.AccessFlags(b.to)
		}
	}
	return out
}

var stageBits = []struct {
	from metadata.PipelineStageFlags
	to   vk.PipelineStageFlagBits
}{
	{metadata.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{metadata.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{metadata.StageTransfer, vk.PipelineStageTransferBit},
	{metadata.StageHost, vk.PipelineStageHostBit},
	{metadata.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{metadata.StageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{metadata.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
	{metadata.StageAllCommands, vk.PipelineStageAllCommandsBit},
}

// vulkanStages never returns an empty mask; vkCmdPipelineBarrier rejects one.
func vulkanStages(s metadata.PipelineStageFlags) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for _, b := range stageBits {
		if s&b.from != 0 {
			out |= vk.PipelineStageFlags(b.to)
		}
	}
	if out == 0 {
		out = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return out
}

func vulkanImageUsage(u metadata.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlagBits
	if u&metadata.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageTransferSrcBit
	}
	if u&metadata.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageTransferDstBit
	}
	if u&metadata.ImageUsageSampled != 0 {
		out |= vk.ImageUsageSampledBit
	}
	if u&metadata.ImageUsageStorage != 0 {
		out |= vk.ImageUsageStorageBit
	}
	if u&metadata.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageColorAttachmentBit
	}
	if u&metadata.ImageUsageDepthAttachment != 0 {
		out |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(out)
}

func vulkanBufferUsage(u metadata.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlagBits
	if u&metadata.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageTransferSrcBit
	}
	if u&metadata.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageTransferDstBit
	}
	if u&metadata.BufferUsageUniform != 0 {
		out |= vk.BufferUsageUniformBufferBit
	}
	if u&metadata.BufferUsageStorage != 0 {
		out |= vk.BufferUsageStorageBufferBit
	}
	return vk.BufferUsageFlags(out)
}

// Sampled images are bound together with the backend's nearest sampler.
func vulkanDescriptorType(k metadata.BindingKind) vk.DescriptorType {
	switch k {
	case metadata.BindingUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case metadata.BindingStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case metadata.BindingStorageImage:
		return vk.DescriptorTypeStorageImage
	}
	return vk.DescriptorTypeCombinedImageSampler
}

func vulkanAspect(a metadata.ImageAspect) vk.ImageAspectFlags {
	if a == metadata.ImageAspectDepth {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func vulkanMemoryProperties(m metadata.MemoryUsage) vk.MemoryPropertyFlags {
	if m == metadata.MemoryHostVisible {
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}
