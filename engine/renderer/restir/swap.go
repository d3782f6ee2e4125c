package restir

import (
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// Parity is the frame counter modulo 2.
func Parity(frame uint64) int {
	return int(frame % 2)
}

// DoubleBuffer holds a ping-pong pair. The element selected for a frame
// is the one at the frame's parity; the other one is its partner.
type DoubleBuffer[T any] struct {
	items [2]T
}

func NewDoubleBuffer[T any](first, second T) DoubleBuffer[T] {
	return DoubleBuffer[T]{items: [2]T{first, second}}
}

// Current returns the element of frame's parity.
func (d *DoubleBuffer[T]) Current(frame uint64) T {
	return d.items[Parity(frame)]
}

// Other returns the element of the opposite parity.
func (d *DoubleBuffer[T]) Other(frame uint64) T {
	return d.items[1-Parity(frame)]
}

// Each calls fn on both elements in order.
func (d *DoubleBuffer[T]) Each(fn func(T)) {
	fn(d.items[0])
	fn(d.items[1])
}

// SwapController decides which reservoir buffer a frame reads and which it
// writes. Roles are fixed when the binding tables are built: table i reads
// reservoir i and writes reservoir 1-i, so per frame only the table changes.
type SwapController struct {
	reservoirs DoubleBuffer[*renderer.Owned[metadata.Buffer]]
	tables     DoubleBuffer[*renderer.Owned[metadata.BindingTable]]
}

// Select returns the index of the binding table to bind for frame.
func (s *SwapController) Select(frame uint64) int {
	return Parity(frame)
}

func (s *SwapController) ReadReservoir(frame uint64) *metadata.Buffer {
	return s.reservoirs.Current(frame).Get()
}

func (s *SwapController) WriteReservoir(frame uint64) *metadata.Buffer {
	return s.reservoirs.Other(frame).Get()
}

func (s *SwapController) BindingTable(frame uint64) *metadata.BindingTable {
	return s.tables.Current(frame).Get()
}

func (s *SwapController) ready() bool {
	return s.reservoirs.items[0].Valid() && s.reservoirs.items[1].Valid() &&
		s.tables.items[0].Valid() && s.tables.items[1].Valid()
}

func (s *SwapController) releaseTables() {
	s.tables.Each(func(t *renderer.Owned[metadata.BindingTable]) { t.Release() })
}

func (s *SwapController) releaseReservoirs() {
	s.reservoirs.Each(func(b *renderer.Owned[metadata.Buffer]) { b.Release() })
}
