package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

func TestFormatsCoverGeometryOutputs(t *testing.T) {
	for _, out := range metadata.GBufferOutputs {
		assert.NotEqual(t, vk.FormatUndefined, vulkanFormat(out.Format()), "output %s", out)
	}
	assert.Equal(t, vk.FormatD32Sfloat, vulkanFormat(metadata.FormatD32Float))
}

func TestAccessAndStageMasks(t *testing.T) {
	got := vulkanAccess(metadata.AccessShaderRead | metadata.AccessTransferWrite)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit|vk.AccessTransferWriteBit), got)
	assert.Zero(t, vulkanAccess(metadata.AccessNone))

	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), vulkanStages(metadata.StageComputeShader))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vulkanStages(0))
}

func TestLayoutsAndDescriptors(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutDepthStencilReadOnlyOptimal, vulkanImageLayout(metadata.ImageLayoutDepthReadOnly))
	assert.Equal(t, vk.ImageLayoutUndefined, vulkanImageLayout(metadata.ImageLayoutUndefined))
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, vulkanDescriptorType(metadata.BindingSampledImage))
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, vulkanDescriptorType(metadata.BindingStorageBuffer))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), vulkanAspect(metadata.ImageAspectDepth))
}

func TestResultStrings(t *testing.T) {
	assert.Equal(t, "VK_ERROR_DEVICE_LOST", VulkanResultString(vk.ErrorDeviceLost, false))
	assert.Contains(t, VulkanResultString(vk.ErrorDeviceLost, true), "has been lost")
	assert.True(t, VulkanResultIsSuccess(vk.Timeout))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorOutOfHostMemory))
	assert.NoError(t, resultError("vkCall", vk.Success))
	assert.ErrorContains(t, resultError("vkCreateBuffer", vk.ErrorOutOfDeviceMemory), "vkCreateBuffer")
}

func TestRepackUint32(t *testing.T) {
	words := repackUint32([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	assert.Equal(t, []uint32{0x07230203, 1}, words)
	assert.Equal(t, "abc", cString([]byte{'a', 'b', 'c', 0, 'x'}))
}
