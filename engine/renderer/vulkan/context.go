package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/restir/engine/core"
)

// VulkanFrame is the per frame-in-flight recording state.
type VulkanFrame struct {
	Commands *VulkanCommandBuffer
	// Signaled once the device has finished the frame's submission.
	InFlight *VulkanFence
}

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	debugReport vk.DebugReportCallback

	Device *VulkanDevice
	Locks  *VulkanLockPool

	Frames       []*VulkanFrame
	CurrentFrame uint32

	// NearestSampler backs every sampled image binding.
	NearestSampler vk.Sampler

	// Diagnostics receives validation layer messages when debugging is enabled.
	Diagnostics *core.DiagnosticSink
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	memoryProperties := vc.Device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&propertyFlags == propertyFlags {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type matches filter %#x with properties %#x", typeFilter, uint32(propertyFlags))
}

// allocate finds memory for requirements, preferring properties and falling
// back to any compatible type when the preferred one does not exist.
func (vc *VulkanContext) allocate(requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlags, required vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	index, err := vc.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if err != nil {
		if index, err = vc.FindMemoryIndex(requirements.MemoryTypeBits, required); err != nil {
			return vk.NullDeviceMemory, err
		}
		core.LogDebug("memory properties %#x unavailable, using type %d", uint32(properties), index)
	}
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(vc.Device.LogicalDevice, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: index,
	}, vc.Allocator, &memory)
	if err := resultError("vkAllocateMemory", res); err != nil {
		return vk.NullDeviceMemory, err
	}
	return memory, nil
}
