package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// VulkanPipeline holds a compute pipeline and its layout.
type VulkanPipeline struct {
	Handle         vk.Pipeline
	PipelineLayout vk.PipelineLayout
	// PushConstantSize is the size of the single compute push constant range.
	PushConstantSize uint32
}

func NewComputePipeline(context *VulkanContext, config metadata.PipelineConfig) (*VulkanPipeline, error) {
	dev := context.Device.LogicalDevice
	module, err := NewShaderModule(context, config.Name, config.Code)
	if err != nil {
		return nil, err
	}
	// The module is not needed once the pipeline exists.
	defer vk.DestroyShaderModule(dev, module, context.Allocator)

	setLayouts := make([]vk.DescriptorSetLayout, 0, len(config.Layouts))
	for _, l := range config.Layouts {
		vl, ok := l.InternalData.(*VulkanBindingLayout)
		if !ok {
			return nil, fmt.Errorf("pipeline %q: layout %q was not created by this backend", config.Name, l.Desc.Name)
		}
		setLayouts = append(setLayouts, vl.Handle)
	}

	p := &VulkanPipeline{PushConstantSize: config.PushConstantSize}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if config.PushConstantSize > 0 {
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Offset:     0,
			Size:       config.PushConstantSize,
		}}
	}
	if err := resultError("vkCreatePipelineLayout", vk.CreatePipelineLayout(dev, &layoutInfo, context.Allocator, &p.PipelineLayout)); err != nil {
		return nil, err
	}

	entryPoint := config.EntryPoint
	if entryPoint == "" {
		entryPoint = "main"
	}
	createInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  VulkanSafeString(entryPoint),
		},
		Layout: p.PipelineLayout,
	}
	pipelines := make([]vk.Pipeline, 1)
	err = context.Locks.SafeCall(PipelineManagement, func() error {
		return resultError("vkCreateComputePipelines", vk.CreateComputePipelines(dev, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, context.Allocator, pipelines))
	})
	if err != nil {
		p.Destroy(context)
		return nil, fmt.Errorf("pipeline %q: %w", config.Name, err)
	}
	p.Handle = pipelines[0]
	return p, nil
}

func (p *VulkanPipeline) Destroy(context *VulkanContext) {
	dev := context.Device.LogicalDevice
	if p.Handle != vk.NullPipeline {
		vk.DestroyPipeline(dev, p.Handle, context.Allocator)
		p.Handle = vk.NullPipeline
	}
	if p.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(dev, p.PipelineLayout, context.Allocator)
		p.PipelineLayout = vk.NullPipelineLayout
	}
}
