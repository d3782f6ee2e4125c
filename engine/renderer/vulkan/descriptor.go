package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// VulkanBindingLayout is a descriptor set layout visible to the compute stage.
type VulkanBindingLayout struct {
	Handle vk.DescriptorSetLayout
	// PoolSizes is what a pool needs to allocate exactly one set of this layout.
	PoolSizes []vk.DescriptorPoolSize
	kinds     map[uint32]metadata.BindingKind
}

func NewVulkanBindingLayout(context *VulkanContext, desc metadata.BindingLayoutDesc) (*VulkanBindingLayout, error) {
	l := &VulkanBindingLayout{kinds: make(map[uint32]metadata.BindingKind, len(desc.Entries))}
	counts := make(map[vk.DescriptorType]uint32)
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		t := vulkanDescriptorType(e.Kind)
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         e.Binding,
			DescriptorType:  t,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		})
		counts[t]++
		l.kinds[e.Binding] = e.Kind
	}
	for t, n := range counts {
		l.PoolSizes = append(l.PoolSizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: n})
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if err := resultError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &l.Handle)); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *VulkanBindingLayout) Destroy(context *VulkanContext) {
	if l.Handle != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, l.Handle, context.Allocator)
		l.Handle = vk.NullDescriptorSetLayout
	}
}

// VulkanBindingTable owns a pool sized for one descriptor set, so tables can
// be created and destroyed independently.
type VulkanBindingTable struct {
	Pool vk.DescriptorPool
	Set  vk.DescriptorSet
}

func NewVulkanBindingTable(context *VulkanContext, desc metadata.BindingTableDesc) (*VulkanBindingTable, error) {
	layout, ok := desc.Layout.InternalData.(*VulkanBindingLayout)
	if !ok {
		return nil, fmt.Errorf("binding table %q: layout %q was not created by this backend", desc.Name, desc.Layout.Desc.Name)
	}
	dev := context.Device.LogicalDevice
	t := &VulkanBindingTable{}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(layout.PoolSizes)),
		PPoolSizes:    layout.PoolSizes,
	}
	if err := resultError("vkCreateDescriptorPool", vk.CreateDescriptorPool(dev, &poolInfo, context.Allocator, &t.Pool)); err != nil {
		return nil, err
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     t.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
	}
	if err := resultError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(dev, &allocInfo, &t.Set)); err != nil {
		t.Destroy(context)
		return nil, err
	}

	writes := make([]vk.WriteDescriptorSet, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		kind, ok := layout.kinds[b.Binding]
		if !ok {
			t.Destroy(context)
			return nil, fmt.Errorf("binding table %q: slot %d not in layout %q", desc.Name, b.Binding, desc.Layout.Desc.Name)
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          t.Set,
			DstBinding:      b.Binding,
			DescriptorCount: 1,
			DescriptorType:  vulkanDescriptorType(kind),
		}
		if kind.IsBuffer() {
			vb, ok := b.Buffer.InternalData.(*VulkanBuffer)
			if !ok {
				t.Destroy(context)
				return nil, fmt.Errorf("binding table %q: slot %d needs a buffer", desc.Name, b.Binding)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: vb.Handle,
				Offset: 0,
				Range:  vk.DeviceSize(vk.WholeSize),
			}}
		} else {
			vi, ok := b.Image.InternalData.(*VulkanImage)
			if !ok {
				t.Destroy(context)
				return nil, fmt.Errorf("binding table %q: slot %d needs an image", desc.Name, b.Binding)
			}
			info := vk.DescriptorImageInfo{
				ImageView:   vi.View,
				ImageLayout: vulkanImageLayout(b.Layout),
			}
			if kind == metadata.BindingSampledImage {
				info.Sampler = context.NearestSampler
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		}
		writes = append(writes, write)
	}
	vk.UpdateDescriptorSets(dev, uint32(len(writes)), writes, 0, nil)
	return t, nil
}

// Destroy frees the pool and with it the set.
func (t *VulkanBindingTable) Destroy(context *VulkanContext) {
	if t.Pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, t.Pool, context.Allocator)
		t.Pool = vk.NullDescriptorPool
	}
	t.Set = nil
}

func createNearestSampler(context *VulkanContext) (vk.Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterNearest,
		MinFilter:               vk.FilterNearest,
		MipmapMode:              vk.SamplerMipmapModeNearest,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		MaxAnisotropy:           1.0,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	var sampler vk.Sampler
	err := resultError("vkCreateSampler", vk.CreateSampler(context.Device.LogicalDevice, &info, context.Allocator, &sampler))
	return sampler, err
}
