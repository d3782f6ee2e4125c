package metadata

import "github.com/google/uuid"

type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatRG16Float
	FormatR32Uint
	FormatD32Float
)

func (f Format) IsDepth() bool {
	return f == FormatD32Float
}

func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatRGBA8Unorm, FormatRG16Float, FormatR32Uint, FormatD32Float:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	}
	return 0
}

type ImageAspect uint32

const (
	ImageAspectColor ImageAspect = 1 << 0
	ImageAspectDepth ImageAspect = 1 << 1
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc     ImageUsage = 1 << 0
	ImageUsageTransferDst     ImageUsage = 1 << 1
	ImageUsageSampled         ImageUsage = 1 << 2
	ImageUsageStorage         ImageUsage = 1 << 3
	ImageUsageColorAttachment ImageUsage = 1 << 4
	ImageUsageDepthAttachment ImageUsage = 1 << 5
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << 0
	BufferUsageTransferDst BufferUsage = 1 << 1
	BufferUsageUniform     BufferUsage = 1 << 2
	BufferUsageStorage     BufferUsage = 1 << 3
)

/**
 * @brief Where a resource's memory should live. Host visible memory can be
 * written directly by BufferWrite; device preferred memory is faster for the
 * device to read and write but has to be filled through a transfer.
 */
type MemoryUsage int

const (
	MemoryDevicePreferred MemoryUsage = iota
	MemoryHostVisible
)

func (m MemoryUsage) String() string {
	if m == MemoryHostVisible {
		return "host-visible"
	}
	return "device-preferred"
}

type BufferDesc struct {
	Name   string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryUsage
}

type ImageDesc struct {
	Name   string
	Extent Extent2D
	Format Format
	Usage  ImageUsage
}

/** @brief A device buffer. InternalData holds the backend's own handle. */
type Buffer struct {
	ID           uuid.UUID
	Desc         BufferDesc
	InternalData interface{}
}

/** @brief A device image. InternalData holds the backend's own handle. */
type Image struct {
	ID           uuid.UUID
	Desc         ImageDesc
	InternalData interface{}
}

func (i *Image) Extent() Extent2D {
	return i.Desc.Extent
}

func (i *Image) Aspect() ImageAspect {
	if i.Desc.Format.IsDepth() {
		return ImageAspectDepth
	}
	return ImageAspectColor
}
