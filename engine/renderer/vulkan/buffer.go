package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	// mapped is the persistent host mapping of host visible buffers.
	mapped unsafe.Pointer
}

func NewVulkanBuffer(context *VulkanContext, desc metadata.BufferDesc) (*VulkanBuffer, error) {
	dev := context.Device.LogicalDevice
	b := &VulkanBuffer{Size: desc.Size}

	res := vk.CreateBuffer(dev, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       vulkanBufferUsage(desc.Usage),
		Size:        vk.DeviceSize(desc.Size),
		SharingMode: vk.SharingModeExclusive,
	}, context.Allocator, &b.Handle)
	if err := resultError("vkCreateBuffer", res); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, b.Handle, &requirements)
	requirements.Deref()

	required := vk.MemoryPropertyFlags(0)
	if desc.Memory == metadata.MemoryHostVisible {
		required = vulkanMemoryProperties(desc.Memory)
	}
	memory, err := context.allocate(requirements, vulkanMemoryProperties(desc.Memory), required)
	if err != nil {
		b.Destroy(context)
		return nil, err
	}
	b.Memory = memory
	if err := resultError("vkBindBufferMemory", vk.BindBufferMemory(dev, b.Handle, b.Memory, 0)); err != nil {
		b.Destroy(context)
		return nil, err
	}

	if desc.Memory == metadata.MemoryHostVisible {
		var ptr unsafe.Pointer
		if err := resultError("vkMapMemory", vk.MapMemory(dev, b.Memory, 0, vk.DeviceSize(desc.Size), 0, &ptr)); err != nil {
			b.Destroy(context)
			return nil, err
		}
		b.mapped = ptr
	}
	return b, nil
}

// Write copies data into a host visible buffer at offset. Memory is coherent
// so no flush is needed.
func (b *VulkanBuffer) Write(offset uint64, data []byte) error {
	if b.mapped == nil {
		return fmt.Errorf("buffer is not host visible")
	}
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("write of %d bytes at %d overflows %d byte buffer", len(data), offset, b.Size)
	}
	vk.Memcopy(unsafe.Add(b.mapped, offset), data)
	return nil
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	dev := context.Device.LogicalDevice
	if b.mapped != nil {
		vk.UnmapMemory(dev, b.Memory)
		b.mapped = nil
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(dev, b.Handle, context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(dev, b.Memory, context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}
