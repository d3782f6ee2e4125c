package metadata

import "github.com/google/uuid"

type BindingKind int

const (
	BindingUniformBuffer BindingKind = iota
	BindingStorageBuffer
	BindingStorageImage
	BindingSampledImage
)

func (k BindingKind) String() string {
	switch k {
	case BindingUniformBuffer:
		return "uniform-buffer"
	case BindingStorageBuffer:
		return "storage-buffer"
	case BindingStorageImage:
		return "storage-image"
	case BindingSampledImage:
		return "sampled-image"
	}
	return "unknown"
}

// IsBuffer reports whether a binding of this kind takes a buffer rather than an image.
func (k BindingKind) IsBuffer() bool {
	return k == BindingUniformBuffer || k == BindingStorageBuffer
}

type BindingLayoutEntry struct {
	Binding uint32
	Kind    BindingKind
	Name    string
}

type BindingLayoutDesc struct {
	Name    string
	Entries []BindingLayoutEntry
}

// Entry returns the entry for slot binding, if any.
func (d BindingLayoutDesc) Entry(binding uint32) (BindingLayoutEntry, bool) {
	for _, e := range d.Entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return BindingLayoutEntry{}, false
}

type BindingLayout struct {
	ID           uuid.UUID
	Desc         BindingLayoutDesc
	InternalData interface{}
}

/** @brief One resource bound to one slot. Exactly one of Buffer or Image is set. */
type Binding struct {
	Binding uint32
	Buffer  *Buffer
	Image   *Image
	// Layout is the layout the image is in while bound.
	Layout ImageLayout
}

type BindingTableDesc struct {
	Name     string
	Layout   *BindingLayout
	Bindings []Binding
}

/** @brief A set of resources matching a BindingLayout, bound as a unit. */
type BindingTable struct {
	ID           uuid.UUID
	Desc         BindingTableDesc
	InternalData interface{}
}

type PipelineConfig struct {
	Name string
	// EntryPoint defaults to "main".
	EntryPoint string
	// Code is the SPIR-V module of the compute stage.
	Code             []byte
	Layouts          []*BindingLayout
	PushConstantSize uint32
}

type Pipeline struct {
	ID           uuid.UUID
	Config       PipelineConfig
	InternalData interface{}
}
