// Package rendertest provides an in-memory renderer.Backend that executes
// commands as they are recorded. Images carry a content tag instead of
// pixels so tests can follow data as it is copied between resources.
package rendertest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

var ErrInjected = errors.New("injected failure")

type image struct {
	desc     metadata.ImageDesc
	layout   metadata.ImageLayout
	contents string
}

// buffer storage is allocated on first write; reservoir sized buffers are never touched.
type buffer struct {
	desc metadata.BufferDesc
	data []byte
}

func (b *buffer) bytes() []byte {
	if b.data == nil {
		b.data = make([]byte, b.desc.Size)
	}
	return b.data
}

// Dispatch is one recorded compute dispatch together with the state bound at the time.
type Dispatch struct {
	Pipeline      *metadata.Pipeline
	Tables        map[uint32]*metadata.BindingTable
	PushConstants []byte
	Groups        [3]uint32
}

type Backend struct {
	mu sync.Mutex

	images    map[uuid.UUID]*image
	buffers   map[uuid.UUID]*buffer
	layouts   map[uuid.UUID]metadata.BindingLayoutDesc
	tables    map[uuid.UUID]metadata.BindingTableDesc
	pipelines map[uuid.UUID]metadata.PipelineConfig

	// Fail makes the next create of the given kind return ErrInjected.
	Fail map[renderer.ResourceKind]bool
	// NoBlit lists formats BlitImage rejects, as a device without blit support would.
	NoBlit map[metadata.Format]bool
	// OnDispatch runs for every Dispatch, after it is appended to Dispatches.
	OnDispatch func(d Dispatch)

	Commands   []string
	Dispatches []Dispatch
	Errors     []error

	inFlight   uint32
	frameOpen  bool
	Submitted  uint64
	Immediate  uint64
	WaitIdles  uint64
	Destroyed  map[renderer.ResourceKind]int
	isShutdown bool
}

func NewBackend() *Backend {
	return &Backend{
		images:    make(map[uuid.UUID]*image),
		buffers:   make(map[uuid.UUID]*buffer),
		layouts:   make(map[uuid.UUID]metadata.BindingLayoutDesc),
		tables:    make(map[uuid.UUID]metadata.BindingTableDesc),
		pipelines: make(map[uuid.UUID]metadata.PipelineConfig),
		Fail:      make(map[renderer.ResourceKind]bool),
		NoBlit:    make(map[metadata.Format]bool),
		Destroyed: make(map[renderer.ResourceKind]int),
		inFlight:  2,
	}
}

func (b *Backend) failf(format string, args ...interface{}) {
	b.Errors = append(b.Errors, fmt.Errorf(format, args...))
}

func (b *Backend) injected(kind renderer.ResourceKind) bool {
	if b.Fail[kind] {
		delete(b.Fail, kind)
		return true
	}
	return false
}

func (b *Backend) BufferCreate(desc metadata.BufferDesc) (*metadata.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.injected(renderer.ResourceBuffer) {
		return nil, ErrInjected
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q has zero size", desc.Name)
	}
	buf := &metadata.Buffer{ID: uuid.New(), Desc: desc}
	b.buffers[buf.ID] = &buffer{desc: desc}
	return buf, nil
}

func (b *Backend) BufferDestroy(buf *metadata.Buffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buffers[buf.ID]; !ok {
		b.failf("destroy of unknown buffer %q", buf.Desc.Name)
		return
	}
	delete(b.buffers, buf.ID)
	b.Destroyed[renderer.ResourceBuffer]++
}

func (b *Backend) BufferWrite(buf *metadata.Buffer, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bb, ok := b.buffers[buf.ID]
	if !ok {
		return fmt.Errorf("write to unknown buffer %q", buf.Desc.Name)
	}
	if bb.desc.Memory != metadata.MemoryHostVisible {
		return fmt.Errorf("buffer %q is not host visible", buf.Desc.Name)
	}
	if offset+uint64(len(data)) > bb.desc.Size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %q", len(data), offset, buf.Desc.Name)
	}
	copy(bb.bytes()[offset:], data)
	return nil
}

func (b *Backend) ImageCreate(desc metadata.ImageDesc) (*metadata.Image, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.injected(renderer.ResourceImage) {
		return nil, ErrInjected
	}
	img := &metadata.Image{ID: uuid.New(), Desc: desc}
	b.images[img.ID] = &image{desc: desc}
	return img, nil
}

func (b *Backend) ImageDestroy(img *metadata.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.images[img.ID]; !ok {
		b.failf("destroy of unknown image %q", img.Desc.Name)
		return
	}
	delete(b.images, img.ID)
	b.Destroyed[renderer.ResourceImage]++
}

func (b *Backend) BindingLayoutCreate(desc metadata.BindingLayoutDesc) (*metadata.BindingLayout, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.injected(renderer.ResourceBindingLayout) {
		return nil, ErrInjected
	}
	l := &metadata.BindingLayout{ID: uuid.New(), Desc: desc}
	b.layouts[l.ID] = desc
	return l, nil
}

func (b *Backend) BindingLayoutDestroy(l *metadata.BindingLayout) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.layouts, l.ID)
	b.Destroyed[renderer.ResourceBindingLayout]++
}

func (b *Backend) BindingTableCreate(desc metadata.BindingTableDesc) (*metadata.BindingTable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.injected(renderer.ResourceBindingTable) {
		return nil, ErrInjected
	}
	if desc.Layout == nil {
		return nil, fmt.Errorf("binding table %q has no layout", desc.Name)
	}
	for _, bind := range desc.Bindings {
		e, ok := desc.Layout.Desc.Entry(bind.Binding)
		if !ok {
			return nil, fmt.Errorf("binding table %q: slot %d not in layout", desc.Name, bind.Binding)
		}
		if e.Kind.IsBuffer() {
			if bind.Buffer == nil || b.buffers[bind.Buffer.ID] == nil {
				return nil, fmt.Errorf("binding table %q: slot %d needs a live buffer", desc.Name, bind.Binding)
			}
		} else if bind.Image == nil || b.images[bind.Image.ID] == nil {
			return nil, fmt.Errorf("binding table %q: slot %d needs a live image", desc.Name, bind.Binding)
		}
	}
	t := &metadata.BindingTable{ID: uuid.New(), Desc: desc}
	b.tables[t.ID] = desc
	return t, nil
}

func (b *Backend) BindingTableDestroy(t *metadata.BindingTable) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tables, t.ID)
	b.Destroyed[renderer.ResourceBindingTable]++
}

func (b *Backend) PipelineCreate(config metadata.PipelineConfig) (*metadata.Pipeline, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.injected(renderer.ResourcePipeline) {
		return nil, ErrInjected
	}
	p := &metadata.Pipeline{ID: uuid.New(), Config: config}
	b.pipelines[p.ID] = config
	return p, nil
}

func (b *Backend) PipelineDestroy(p *metadata.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pipelines, p.ID)
	b.Destroyed[renderer.ResourcePipeline]++
}

func (b *Backend) BeginFrame(frameIndex uint64) (renderer.CommandStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frameOpen {
		return nil, fmt.Errorf("frame %d begun twice", frameIndex)
	}
	b.frameOpen = true
	b.Commands = append(b.Commands, fmt.Sprintf("begin-frame %d", frameIndex))
	return newStream(b), nil
}

func (b *Backend) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.frameOpen {
		return errors.New("end frame without begin")
	}
	b.frameOpen = false
	b.Submitted++
	b.Commands = append(b.Commands, "end-frame")
	return nil
}

func (b *Backend) SubmitImmediate(fn func(renderer.CommandStream) error) error {
	b.mu.Lock()
	b.Immediate++
	b.mu.Unlock()
	return fn(newStream(b))
}

func (b *Backend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.WaitIdles++
	return nil
}

func (b *Backend) FramesInFlight() uint32 {
	return b.inFlight
}

func (b *Backend) SupportsBlit(format metadata.Format) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.NoBlit[format]
}

func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isShutdown = true
	return nil
}

// Live counts every backend object not yet destroyed.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.images) + len(b.buffers) + len(b.layouts) + len(b.tables) + len(b.pipelines)
}

func (b *Backend) LivePipelines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pipelines)
}

// Contents returns the content tag of a live image.
func (b *Backend) Contents(img *metadata.Image) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.images[img.ID]; ok {
		return i.contents
	}
	return ""
}

// Fill sets the content tag of an image as if a render pass wrote it.
func (b *Backend) Fill(img *metadata.Image, contents string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.images[img.ID]; ok {
		i.contents = contents
	}
}

// Layout returns the layout the image is actually in, as opposed to the tracked one.
func (b *Backend) Layout(img *metadata.Image) metadata.ImageLayout {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.images[img.ID]; ok {
		return i.layout
	}
	return metadata.ImageLayoutUndefined
}

// SetLayout moves an image to layout without a barrier, as a render pass would.
func (b *Backend) SetLayout(img *metadata.Image, layout metadata.ImageLayout) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.images[img.ID]; ok {
		i.layout = layout
	}
}

// BufferData returns a copy of a live buffer's bytes.
func (b *Backend) BufferData(buf *metadata.Buffer) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	bb, ok := b.buffers[buf.ID]
	if !ok {
		return nil
	}
	out := make([]byte, bb.desc.Size)
	copy(out, bb.data)
	return out
}

func (b *Backend) IsShutdown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isShutdown
}

var _ renderer.Backend = (*Backend)(nil)
