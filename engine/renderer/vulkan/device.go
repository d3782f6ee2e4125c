package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/restir/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device
	Name           string

	// One queue family does compute, transfers and blits.
	QueueIndex  uint32
	Queue       vk.Queue
	CommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties

	blitSupport map[vk.Format]bool
}

type VulkanPhysicalDeviceRequirements struct {
	// Blits are only valid on graphics capable queues.
	Graphics             bool
	Compute              bool
	DiscreteGPU          bool
	DeviceExtensionNames []string
}

type physicalDeviceCandidate struct {
	device     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties
	queueIndex uint32
	score      int
}

func DeviceCreate(context *VulkanContext, requirements VulkanPhysicalDeviceRequirements) error {
	candidate, err := SelectPhysicalDevice(context, requirements)
	if err != nil {
		return err
	}
	device := &VulkanDevice{
		PhysicalDevice: candidate.device,
		Name:           cString(candidate.properties.DeviceName[:]),
		QueueIndex:     candidate.queueIndex,
		Properties:     candidate.properties,
		Memory:         candidate.memory,
		blitSupport:    make(map[vk.Format]bool),
	}

	core.LogInfo("Creating logical device...")

	extensions := append([]string(nil), requirements.DeviceExtensionNames...)
	if deviceExtensionNames(device.PhysicalDevice)["VK_KHR_portability_subset"] {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: device.QueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueCreateInfo},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	var logical vk.Device
	if err := resultError("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical)); err != nil {
		return err
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.QueueIndex, 0, &queue)
	device.Queue = queue
	context.Locks.SetQueueFamily(device.QueueIndex)

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.QueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := resultError("vkCreateCommandPool", vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool)); err != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		return err
	}
	device.CommandPool = pool
	core.LogInfo("Command pool created.")

	context.Device = device
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	device.Queue = nil

	core.LogInfo("Destroying command pools...")
	if device.CommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(device.LogicalDevice, device.CommandPool, context.Allocator)
		device.CommandPool = vk.NullCommandPool
	}

	core.LogInfo("Destroying logical device...")
	if device.LogicalDevice != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	context.Device = nil
}

// SupportsBlit reports whether format can be both source and destination of
// vkCmdBlitImage with optimal tiling.
func (d *VulkanDevice) SupportsBlit(format vk.Format) bool {
	if ok, cached := d.blitSupport[format]; cached {
		return ok
	}
	var properties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, format, &properties)
	properties.Deref()
	need := vk.FormatFeatureFlags(vk.FormatFeatureBlitSrcBit | vk.FormatFeatureBlitDstBit)
	ok := properties.OptimalTilingFeatures&need == need
	d.blitSupport[format] = ok
	return ok
}

func SelectPhysicalDevice(context *VulkanContext, requirements VulkanPhysicalDeviceRequirements) (*physicalDeviceCandidate, error) {
	var physicalDeviceCount uint32
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil)); err != nil {
		return nil, err
	}
	if physicalDeviceCount == 0 {
		return nil, fmt.Errorf("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := resultError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return nil, err
	}

	if runtime.GOOS == "darwin" {
		requirements.DiscreteGPU = false
	}

	var best *physicalDeviceCandidate
	for _, pd := range physicalDevices {
		c, ok := physicalDeviceMeetsRequirements(pd, requirements)
		if !ok {
			continue
		}
		if best == nil || c.score > best.score {
			best = c
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no physical devices were found which meet the requirements")
	}

	core.LogInfo("Selected device: '%s'.", cString(best.properties.DeviceName[:]))
	switch best.properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	driver, api := vk.Version(best.properties.DriverVersion), vk.Version(best.properties.ApiVersion)
	core.LogInfo("GPU Driver version: %d.%d.%d", driver.Major(), driver.Minor(), driver.Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d", api.Major(), api.Minor(), api.Patch())

	for j := uint32(0); j < best.memory.MemoryHeapCount; j++ {
		heap := best.memory.MemoryHeaps[j]
		heap.Deref()
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
	return best, nil
}

func physicalDeviceMeetsRequirements(device vk.PhysicalDevice, requirements VulkanPhysicalDeviceRequirements) (*physicalDeviceCandidate, bool) {
	c := &physicalDeviceCandidate{device: device}
	vk.GetPhysicalDeviceProperties(device, &c.properties)
	c.properties.Deref()
	vk.GetPhysicalDeviceMemoryProperties(device, &c.memory)
	c.memory.Deref()
	name := cString(c.properties.DeviceName[:])

	switch c.properties.DeviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		c.score = 2
	case vk.PhysicalDeviceTypeIntegratedGpu:
		c.score = 1
	}
	if requirements.DiscreteGPU && c.properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
		return nil, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	var want vk.QueueFlags
	if requirements.Graphics {
		want |= vk.QueueFlags(vk.QueueGraphicsBit)
	}
	if requirements.Compute {
		want |= vk.QueueFlags(vk.QueueComputeBit)
	}
	found := false
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&want == want {
			c.queueIndex = uint32(i)
			found = true
			break
		}
	}
	if !found {
		core.LogInfo("Device '%s' has no queue family with flags %#x, skipping.", name, uint32(want))
		return nil, false
	}
	core.LogDebug("Device '%s' queue family index: %d", name, c.queueIndex)

	available := deviceExtensionNames(device)
	for _, ext := range requirements.DeviceExtensionNames {
		if !available[ext] {
			core.LogInfo("Required extension not found: '%s', skipping device.", ext)
			return nil, false
		}
	}
	return c, true
}

func deviceExtensionNames(device vk.PhysicalDevice) map[string]bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return nil
	}
	extensions := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, extensions); res != vk.Success {
		return nil
	}
	names := make(map[string]bool, count)
	for i := range extensions {
		extensions[i].Deref()
		names[cString(extensions[i].ExtensionName[:])] = true
	}
	return names
}
