package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

const spirvMagic = 0x07230203

// NewShaderModule wraps a SPIR-V binary. name is only used in errors.
func NewShaderModule(context *VulkanContext, name string, code []byte) (vk.ShaderModule, error) {
	if len(code) < 4 || len(code)%4 != 0 {
		return vk.NullShaderModule, fmt.Errorf("shader %q: %d bytes is not a SPIR-V module", name, len(code))
	}
	words := repackUint32(code)
	if words[0] != spirvMagic {
		return vk.NullShaderModule, fmt.Errorf("shader %q: bad SPIR-V magic %#x", name, words[0])
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := resultError("vkCreateShaderModule", vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &module)); err != nil {
		return vk.NullShaderModule, fmt.Errorf("shader %q: %w", name, err)
	}
	return module, nil
}
