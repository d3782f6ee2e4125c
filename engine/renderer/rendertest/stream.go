package rendertest

import (
	"fmt"

	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

type stream struct {
	b        *Backend
	pipeline *metadata.Pipeline
	tables   map[uint32]*metadata.BindingTable
	push     []byte
}

func newStream(b *Backend) *stream {
	return &stream{b: b, tables: make(map[uint32]*metadata.BindingTable)}
}

func (s *stream) log(format string, args ...interface{}) {
	s.b.Commands = append(s.b.Commands, fmt.Sprintf(format, args...))
}

// image resolves a live image and checks it is in the layout the caller claims.
func (s *stream) image(img *metadata.Image, layout metadata.ImageLayout, op string) *image {
	i, ok := s.b.images[img.ID]
	if !ok {
		s.b.failf("%s: image %q is not live", op, img.Desc.Name)
		return nil
	}
	if i.layout != layout {
		s.b.failf("%s: image %q is in %s, not %s", op, img.Desc.Name, i.layout, layout)
	}
	return i
}

func (s *stream) ImageBarrier(barrier renderer.ImageBarrier) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("barrier %s %s->%s", barrier.Image.Desc.Name, barrier.OldLayout, barrier.NewLayout)
	i, ok := s.b.images[barrier.Image.ID]
	if !ok {
		s.b.failf("barrier: image %q is not live", barrier.Image.Desc.Name)
		return
	}
	if barrier.OldLayout != metadata.ImageLayoutUndefined && barrier.OldLayout != i.layout {
		s.b.failf("barrier: image %q is in %s, barrier claims %s", barrier.Image.Desc.Name, i.layout, barrier.OldLayout)
	}
	if barrier.OldLayout == metadata.ImageLayoutUndefined {
		i.contents = ""
	}
	i.layout = barrier.NewLayout
}

func (s *stream) BufferBarrier(barrier renderer.BufferBarrier) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("buffer-barrier %s", barrier.Buffer.Desc.Name)
	if _, ok := s.b.buffers[barrier.Buffer.ID]; !ok {
		s.b.failf("buffer barrier: buffer %q is not live", barrier.Buffer.Desc.Name)
	}
}

func (s *stream) CopyImage(src *metadata.Image, srcLayout metadata.ImageLayout, dst *metadata.Image, dstLayout metadata.ImageLayout) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("copy %s->%s", src.Desc.Name, dst.Desc.Name)
	if srcLayout != metadata.ImageLayoutTransferSrc || dstLayout != metadata.ImageLayoutTransferDst {
		s.b.failf("copy %s->%s: bad layouts %s/%s", src.Desc.Name, dst.Desc.Name, srcLayout, dstLayout)
	}
	si := s.image(src, srcLayout, "copy source")
	di := s.image(dst, dstLayout, "copy destination")
	if si == nil || di == nil {
		return
	}
	if si.desc.Extent != di.desc.Extent {
		s.b.failf("copy %s->%s: extents %s and %s differ", src.Desc.Name, dst.Desc.Name, si.desc.Extent, di.desc.Extent)
		return
	}
	di.contents = si.contents
}

func (s *stream) BlitImage(src *metadata.Image, srcLayout metadata.ImageLayout, dst *metadata.Image, dstLayout metadata.ImageLayout) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("blit %s->%s", src.Desc.Name, dst.Desc.Name)
	si := s.image(src, srcLayout, "blit source")
	di := s.image(dst, dstLayout, "blit destination")
	if si == nil || di == nil {
		return
	}
	if s.b.NoBlit[si.desc.Format] || s.b.NoBlit[di.desc.Format] {
		s.b.failf("blit %s->%s: format cannot be blitted", src.Desc.Name, dst.Desc.Name)
		return
	}
	di.contents = si.contents
}

func (s *stream) CopyBuffer(src, dst *metadata.Buffer, size uint64) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("copy-buffer %s->%s %d", src.Desc.Name, dst.Desc.Name, size)
	sb, ok1 := s.b.buffers[src.ID]
	db, ok2 := s.b.buffers[dst.ID]
	if !ok1 || !ok2 {
		s.b.failf("copy-buffer %s->%s: buffer not live", src.Desc.Name, dst.Desc.Name)
		return
	}
	if size > sb.desc.Size || size > db.desc.Size {
		s.b.failf("copy-buffer %s->%s: size %d out of range", src.Desc.Name, dst.Desc.Name, size)
		return
	}
	copy(db.bytes()[:size], sb.bytes()[:size])
}

func (s *stream) ClearColorImage(img *metadata.Image, layout metadata.ImageLayout, color [4]float32) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("clear %s", img.Desc.Name)
	if i := s.image(img, layout, "clear"); i != nil {
		i.contents = fmt.Sprintf("clear(%g,%g,%g,%g)", color[0], color[1], color[2], color[3])
	}
}

func (s *stream) ClearDepthImage(img *metadata.Image, layout metadata.ImageLayout, depth float32) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("clear-depth %s", img.Desc.Name)
	if i := s.image(img, layout, "clear depth"); i != nil {
		i.contents = fmt.Sprintf("depth(%g)", depth)
	}
}

func (s *stream) BindPipeline(pipeline *metadata.Pipeline) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("bind-pipeline %s", pipeline.Config.Name)
	if _, ok := s.b.pipelines[pipeline.ID]; !ok {
		s.b.failf("bind of destroyed pipeline %q", pipeline.Config.Name)
	}
	s.pipeline = pipeline
}

func (s *stream) BindBindingTable(pipeline *metadata.Pipeline, set uint32, table *metadata.BindingTable) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("bind-table %d %s", set, table.Desc.Name)
	if _, ok := s.b.tables[table.ID]; !ok {
		s.b.failf("bind of destroyed binding table %q", table.Desc.Name)
	}
	s.tables[set] = table
}

func (s *stream) PushConstants(pipeline *metadata.Pipeline, data []byte) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.log("push-constants %d", len(data))
	if uint32(len(data)) > pipeline.Config.PushConstantSize {
		s.b.failf("push constants of %d bytes exceed %d", len(data), pipeline.Config.PushConstantSize)
	}
	s.push = append([]byte(nil), data...)
}

func (s *stream) Dispatch(groupsX, groupsY, groupsZ uint32) {
	s.b.mu.Lock()
	s.log("dispatch %d %d %d", groupsX, groupsY, groupsZ)
	if s.pipeline == nil {
		s.b.failf("dispatch without a bound pipeline")
	}
	tables := make(map[uint32]*metadata.BindingTable, len(s.tables))
	for k, v := range s.tables {
		tables[k] = v
	}
	d := Dispatch{
		Pipeline:      s.pipeline,
		Tables:        tables,
		PushConstants: append([]byte(nil), s.push...),
		Groups:        [3]uint32{groupsX, groupsY, groupsZ},
	}
	s.b.Dispatches = append(s.b.Dispatches, d)
	hook := s.b.OnDispatch
	s.b.mu.Unlock()
	if hook != nil {
		hook(d)
	}
}

var _ renderer.CommandStream = (*stream)(nil)
