package restir

import (
	"fmt"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// resolutionSet is everything whose size follows the screen.
type resolutionSet struct {
	history    *HistoryImages
	reservoirs DoubleBuffer[*renderer.Owned[metadata.Buffer]]
	tables     DoubleBuffer[*renderer.Owned[metadata.BindingTable]]
}

func (r *resolutionSet) release(layouts *renderer.ImageLayoutCache) {
	r.tables.Each(func(t *renderer.Owned[metadata.BindingTable]) { t.Release() })
	r.reservoirs.Each(func(b *renderer.Owned[metadata.Buffer]) { b.Release() })
	if r.history != nil {
		r.history.release(layouts)
	}
}

func (s *Stage) createReservoirs(extent metadata.Extent2D) (DoubleBuffer[*renderer.Owned[metadata.Buffer]], error) {
	var out [2]*renderer.Owned[metadata.Buffer]
	size := ReservoirBufferSize(extent, s.opts.ReservoirSize)
	for i := range out {
		b, err := s.registry.CreateBuffer(metadata.BufferDesc{
			Name:   fmt.Sprintf("restir.reservoirs#%d", i),
			Size:   size,
			Usage:  metadata.BufferUsageStorage | metadata.BufferUsageTransferDst,
			Memory: s.opts.ReservoirMemory,
		})
		if err != nil {
			out[0].Release()
			return DoubleBuffer[*renderer.Owned[metadata.Buffer]]{}, err
		}
		out[i] = b
	}
	return NewDoubleBuffer(out[0], out[1]), nil
}

// createTables builds table i reading reservoir i and writing reservoir 1-i.
func (s *Stage) createTables(reservoirs DoubleBuffer[*renderer.Owned[metadata.Buffer]], history *HistoryImages) (DoubleBuffer[*renderer.Owned[metadata.BindingTable]], error) {
	var out [2]*renderer.Owned[metadata.BindingTable]
	for i := range out {
		frame := uint64(i)
		bindings := []metadata.Binding{
			{Binding: BindingConfig, Buffer: s.uniforms.Buffer()},
			{Binding: BindingReservoirRead, Buffer: reservoirs.Current(frame).Get()},
			{Binding: BindingReservoirWrite, Buffer: reservoirs.Other(frame).Get()},
		}
		for _, e := range copyTable {
			img := history.Image(e.slot)
			bindings = append(bindings, metadata.Binding{
				Binding: BindingHistory + uint32(e.slot),
				Image:   img,
				Layout:  readLayout(img),
			})
		}
		for j, name := range metadata.GBufferOutputs {
			img := s.gbuffer.Output(name)
			if img == nil {
				out[0].Release()
				return DoubleBuffer[*renderer.Owned[metadata.BindingTable]]{}, fmt.Errorf("%w: geometry output %q missing", core.ErrResourceCreation, name)
			}
			bindings = append(bindings, metadata.Binding{
				Binding: BindingGBuffer + uint32(j),
				Image:   img,
				Layout:  readLayout(img),
			})
		}
		t, err := s.registry.CreateBindingTable(metadata.BindingTableDesc{
			Name:     fmt.Sprintf("restir.table#%d", i),
			Layout:   s.layout.Get(),
			Bindings: bindings,
		})
		if err != nil {
			out[0].Release()
			return DoubleBuffer[*renderer.Owned[metadata.BindingTable]]{}, err
		}
		out[i] = t
	}
	return NewDoubleBuffer(out[0], out[1]), nil
}

// createResolutionDependent builds a complete new set at extent and only then
// replaces the current one. When reuseHistory is set the current history
// images are kept and only the tables and reservoirs are rebuilt.
func (s *Stage) createResolutionDependent(extent metadata.Extent2D, reuseHistory bool) error {
	next := &resolutionSet{}
	var err error
	if reuseHistory {
		next.history = s.history
	} else if next.history, err = newHistoryImages(s.registry, extent); err != nil {
		return err
	}
	fail := func(err error) error {
		next.tables.Each(func(t *renderer.Owned[metadata.BindingTable]) { t.Release() })
		next.reservoirs.Each(func(b *renderer.Owned[metadata.Buffer]) { b.Release() })
		if !reuseHistory {
			next.history.release(s.layouts)
		}
		return err
	}
	if next.reservoirs, err = s.createReservoirs(extent); err != nil {
		return fail(err)
	}
	if next.tables, err = s.createTables(next.reservoirs, next.history); err != nil {
		return fail(err)
	}

	var cleared []HistorySlot
	if !reuseHistory && s.history != nil {
		if _, ok := s.capture.LastCaptured(); ok {
			backend := s.registry.Backend()
			err := backend.SubmitImmediate(func(stream renderer.CommandStream) error {
				cleared = s.capture.carryOver(stream, s.layouts, next.history, backend.SupportsBlit)
				return nil
			})
			if err != nil {
				return fail(err)
			}
			for _, slot := range cleared {
				core.LogWarn("history %s cannot be scaled on this device, cleared until the next capture", slot)
			}
		}
	}

	old := &resolutionSet{reservoirs: s.swap.reservoirs, tables: s.swap.tables}
	if !reuseHistory {
		old.history = s.history
	}
	old.release(s.layouts)

	s.swap.reservoirs = next.reservoirs
	s.swap.tables = next.tables
	s.history = next.history
	s.capture.history = next.history
	if !reuseHistory {
		s.capture.markCleared(cleared)
	}
	s.extent = extent
	s.rememberGBuffer()
	return nil
}

func (s *Stage) rememberGBuffer() {
	s.boundGBuffer = make(map[metadata.GBufferOutput]*metadata.Image, len(metadata.GBufferOutputs))
	for _, name := range metadata.GBufferOutputs {
		s.boundGBuffer[name] = s.gbuffer.Output(name)
	}
}

func (s *Stage) gbufferChanged() bool {
	for _, name := range metadata.GBufferOutputs {
		if s.boundGBuffer[name] != s.gbuffer.Output(name) {
			return true
		}
	}
	return false
}

// OnResize rebuilds the reservoir pair, the history images and the binding
// tables at extent. The geometry buffer must already be at extent. Calling it
// again with the current extent and unchanged geometry outputs does nothing.
// The history captured before the resize is scaled into the new images.
func (s *Stage) OnResize(extent metadata.Extent2D) error {
	if !s.initialized {
		return core.ErrNotInitialized
	}
	if extent.IsZero() {
		return fmt.Errorf("%w: resize to %s", core.ErrInvalidExtent, extent)
	}
	if ext := s.gbuffer.Extent(); ext != extent {
		return fmt.Errorf("%w: resize to %s but geometry buffer is %s", core.ErrExtentMismatch, extent, ext)
	}
	sameExtent := extent == s.extent
	if sameExtent && !s.gbufferChanged() {
		core.LogDebug("restir resize to %s ignored, resources already match", extent)
		return nil
	}
	if err := s.registry.Backend().WaitIdle(); err != nil {
		return err
	}
	from := s.extent
	if err := s.createResolutionDependent(extent, sameExtent); err != nil {
		return err
	}
	s.config.ScreenSize = extent
	s.discard = true
	core.LogInfo("restir resources resized %s -> %s, reservoir pair 2x%d bytes", from, extent, s.ReservoirBufferSize())
	return nil
}

// DependsOn reports whether any of the pipeline's sources is in changed.
func (s *Stage) DependsOn(changed ShaderChangeSet) bool {
	for _, path := range s.source.Sources() {
		if changed.HasBeenRecompiled(path) {
			return true
		}
	}
	return false
}

// OnShaderSourceChanged rebuilds the pipeline once if it depends on a changed
// source and reports whether it did. Reservoirs, history and binding tables
// are left alone. If the new pipeline cannot be built the old one stays
// bound and the error is returned.
func (s *Stage) OnShaderSourceChanged(changed ShaderChangeSet) (bool, error) {
	if !s.initialized {
		return false, core.ErrNotInitialized
	}
	if !s.DependsOn(changed) {
		return false, nil
	}
	p, err := s.buildPipeline()
	if err != nil {
		return false, err
	}
	if err := s.registry.Backend().WaitIdle(); err != nil {
		p.Release()
		return false, err
	}
	s.pipeline.Release()
	s.pipeline = p
	s.generation++
	core.LogInfo("restir pipeline rebuilt, generation %d", s.generation)
	return true, nil
}
