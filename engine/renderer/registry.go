package renderer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

type ResourceKind int

const (
	ResourceBuffer ResourceKind = iota
	ResourceImage
	ResourceBindingLayout
	ResourceBindingTable
	ResourcePipeline
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceBuffer:
		return "buffer"
	case ResourceImage:
		return "image"
	case ResourceBindingLayout:
		return "binding-layout"
	case ResourceBindingTable:
		return "binding-table"
	case ResourcePipeline:
		return "pipeline"
	}
	return "unknown"
}

type entry struct {
	kind    ResourceKind
	name    string
	release func()
}

// Owned is a scoped handle to a registry resource. Release destroys the
// resource once; later calls do nothing. Get returns nil after Release.
type Owned[T any] struct {
	id       uuid.UUID
	value    *T
	registry *Registry
	once     sync.Once
}

func (o *Owned[T]) Get() *T {
	if o == nil {
		return nil
	}
	return o.value
}

func (o *Owned[T]) Valid() bool {
	return o != nil && o.value != nil
}

func (o *Owned[T]) Release() {
	if o == nil {
		return
	}
	o.once.Do(func() {
		o.registry.release(o.id)
		o.value = nil
	})
}

// Registry owns every device resource the frame pipeline creates and keeps
// count of what is alive.
type Registry struct {
	backend Backend

	mu      sync.Mutex
	live    map[uuid.UUID]*entry
	created uint64
}

func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend: backend,
		live:    make(map[uuid.UUID]*entry),
	}
}

func (r *Registry) Backend() Backend {
	return r.backend
}

func track[T any](r *Registry, kind ResourceKind, name string, id uuid.UUID, value *T, destroy func(*T)) *Owned[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	r.live[id] = &entry{
		kind:    kind,
		name:    name,
		release: func() { destroy(value) },
	}
	return &Owned[T]{id: id, value: value, registry: r}
}

func (r *Registry) release(id uuid.UUID) {
	r.mu.Lock()
	e, ok := r.live[id]
	delete(r.live, id)
	r.mu.Unlock()
	if ok {
		e.release()
	}
}

func creationError(kind ResourceKind, name string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", core.ErrResourceCreation, kind, name, err)
}

func (r *Registry) CreateBuffer(desc metadata.BufferDesc) (*Owned[metadata.Buffer], error) {
	b, err := r.backend.BufferCreate(desc)
	if err != nil {
		return nil, creationError(ResourceBuffer, desc.Name, err)
	}
	return track(r, ResourceBuffer, desc.Name, b.ID, b, r.backend.BufferDestroy), nil
}

func (r *Registry) CreateImage(desc metadata.ImageDesc) (*Owned[metadata.Image], error) {
	if desc.Extent.IsZero() {
		return nil, creationError(ResourceImage, desc.Name, core.ErrInvalidExtent)
	}
	img, err := r.backend.ImageCreate(desc)
	if err != nil {
		return nil, creationError(ResourceImage, desc.Name, err)
	}
	return track(r, ResourceImage, desc.Name, img.ID, img, r.backend.ImageDestroy), nil
}

func (r *Registry) CreateBindingLayout(desc metadata.BindingLayoutDesc) (*Owned[metadata.BindingLayout], error) {
	l, err := r.backend.BindingLayoutCreate(desc)
	if err != nil {
		return nil, creationError(ResourceBindingLayout, desc.Name, err)
	}
	return track(r, ResourceBindingLayout, desc.Name, l.ID, l, r.backend.BindingLayoutDestroy), nil
}

func (r *Registry) CreateBindingTable(desc metadata.BindingTableDesc) (*Owned[metadata.BindingTable], error) {
	t, err := r.backend.BindingTableCreate(desc)
	if err != nil {
		return nil, creationError(ResourceBindingTable, desc.Name, err)
	}
	return track(r, ResourceBindingTable, desc.Name, t.ID, t, r.backend.BindingTableDestroy), nil
}

func (r *Registry) CreatePipeline(config metadata.PipelineConfig) (*Owned[metadata.Pipeline], error) {
	p, err := r.backend.PipelineCreate(config)
	if err != nil {
		return nil, creationError(ResourcePipeline, config.Name, err)
	}
	return track(r, ResourcePipeline, config.Name, p.ID, p, r.backend.PipelineDestroy), nil
}

// Live returns the number of resources created and not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Registry) LiveOf(kind ResourceKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.live {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// Created returns the number of resources ever created through the registry.
func (r *Registry) Created() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

// LiveNames lists live resource names sorted, for leak reports.
func (r *Registry) LiveNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.live))
	for _, e := range r.live {
		names = append(names, fmt.Sprintf("%s:%s", e.kind, e.name))
	}
	sort.Strings(names)
	return names
}

// ReleaseAll destroys every live resource. Tables go before the layouts
// and resources they reference.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.live))
	for id, e := range r.live {
		entries = append(entries, e)
		delete(r.live, id)
	}
	r.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return releaseOrder(entries[i].kind) < releaseOrder(entries[j].kind)
	})
	for _, e := range entries {
		e.release()
	}
}

func releaseOrder(k ResourceKind) int {
	switch k {
	case ResourcePipeline:
		return 0
	case ResourceBindingTable:
		return 1
	case ResourceBindingLayout:
		return 2
	}
	return 3
}
