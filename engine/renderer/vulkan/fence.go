package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if createSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if err := resultError("vkCreateFence", vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &handle)); err != nil {
		return nil, err
	}
	return &VulkanFence{Handle: handle, IsSignaled: createSignaled}, nil
}

func (vf *VulkanFence) Destroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Wait blocks until the fence is signaled. Fences known to be signaled return at once.
func (vf *VulkanFence) Wait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		return fmt.Errorf("fence wait timed out after %s", time.Duration(timeoutNs))
	}
	return resultError("vkWaitForFences", result)
}

// Abandon records that no submission will signal the fence, so the next Wait
// returns at once. Reset still resets it before it is reused.
func (vf *VulkanFence) Abandon() {
	vf.IsSignaled = true
}

// submitWithFence runs submit, which hands fence to the queue. When the
// submission fails nothing will ever signal the fence, so it is abandoned
// to keep the next wait on its slot from blocking forever.
func submitWithFence(fence *VulkanFence, submit func() error) error {
	if err := submit(); err != nil {
		fence.Abandon()
		return err
	}
	return nil
}

func (vf *VulkanFence) Reset(context *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if err := resultError("vkResetFences", vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle})); err != nil {
		return err
	}
	vf.IsSignaled = false
	return nil
}
