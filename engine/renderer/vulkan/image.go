package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format
	Aspect vk.ImageAspectFlags
}

func NewVulkanImage(context *VulkanContext, desc metadata.ImageDesc, aspect metadata.ImageAspect) (*VulkanImage, error) {
	dev := context.Device.LogicalDevice
	img := &VulkanImage{
		Width:  desc.Extent.Width,
		Height: desc.Extent.Height,
		Format: vulkanFormat(desc.Format),
		Aspect: vulkanAspect(aspect),
	}

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  img.Width,
			Height: img.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        img.Format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vulkanImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}
	if err := resultError("vkCreateImage", vk.CreateImage(dev, &imageInfo, context.Allocator, &img.Handle)); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, img.Handle, &requirements)
	requirements.Deref()
	memory, err := context.allocate(requirements, vulkanMemoryProperties(metadata.MemoryDevicePreferred), 0)
	if err != nil {
		img.Destroy(context)
		return nil, err
	}
	img.Memory = memory
	if err := resultError("vkBindImageMemory", vk.BindImageMemory(dev, img.Handle, img.Memory, 0)); err != nil {
		img.Destroy(context)
		return nil, err
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            img.Handle,
		ViewType:         vk.ImageViewType2d,
		Format:           img.Format,
		SubresourceRange: img.subresourceRange(),
	}
	if err := resultError("vkCreateImageView", vk.CreateImageView(dev, &viewInfo, context.Allocator, &img.View)); err != nil {
		img.Destroy(context)
		return nil, err
	}
	return img, nil
}

func (img *VulkanImage) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     img.Aspect,
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

func (img *VulkanImage) subresourceLayers() vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     img.Aspect,
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
}

func (img *VulkanImage) Destroy(context *VulkanContext) {
	dev := context.Device.LogicalDevice
	if img.View != vk.NullImageView {
		vk.DestroyImageView(dev, img.View, context.Allocator)
		img.View = vk.NullImageView
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(dev, img.Handle, context.Allocator)
		img.Handle = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(dev, img.Memory, context.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
}
