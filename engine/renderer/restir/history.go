package restir

import (
	"fmt"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// HistorySlot names one previous-frame image.
type HistorySlot int

const (
	HistoryAlbedo HistorySlot = iota
	HistoryNormal
	HistoryWorldPos
	HistoryDepth

	historySlotCount
)

func (h HistorySlot) String() string {
	switch h {
	case HistoryAlbedo:
		return "albedo"
	case HistoryNormal:
		return "normal"
	case HistoryWorldPos:
		return "worldpos"
	case HistoryDepth:
		return "depth"
	}
	return fmt.Sprintf("slot(%d)", int(h))
}

type copyEntry struct {
	source metadata.GBufferOutput
	slot   HistorySlot
}

// copyTable lists which geometry outputs are kept for the next frame.
var copyTable = [historySlotCount]copyEntry{
	{metadata.GBufferAlbedo, HistoryAlbedo},
	{metadata.GBufferNormal, HistoryNormal},
	{metadata.GBufferWorldPos, HistoryWorldPos},
	{metadata.GBufferDepth, HistoryDepth},
}

// readLayout is the layout a sampled image rests in between frames.
func readLayout(img *metadata.Image) metadata.ImageLayout {
	if img.Aspect() == metadata.ImageAspectDepth {
		return metadata.ImageLayoutDepthReadOnly
	}
	return metadata.ImageLayoutShaderReadOnly
}

// HistoryImages holds the previous frame's geometry outputs.
type HistoryImages struct {
	images [historySlotCount]*renderer.Owned[metadata.Image]
	extent metadata.Extent2D
}

func newHistoryImages(registry *renderer.Registry, extent metadata.Extent2D) (*HistoryImages, error) {
	h := &HistoryImages{extent: extent}
	for _, e := range copyTable {
		img, err := registry.CreateImage(metadata.ImageDesc{
			Name:   "history." + e.slot.String(),
			Extent: extent,
			Format: e.source.Format(),
			Usage:  metadata.ImageUsageTransferSrc | metadata.ImageUsageTransferDst | metadata.ImageUsageSampled,
		})
		if err != nil {
			h.release(nil)
			return nil, err
		}
		h.images[e.slot] = img
	}
	return h, nil
}

func (h *HistoryImages) Image(slot HistorySlot) *metadata.Image {
	return h.images[slot].Get()
}

func (h *HistoryImages) Extent() metadata.Extent2D {
	return h.extent
}

// release destroys the images and drops them from layouts when given.
func (h *HistoryImages) release(layouts *renderer.ImageLayoutCache) {
	for _, img := range h.images {
		if layouts != nil && img.Valid() {
			layouts.Forget(img.Get())
		}
		img.Release()
	}
}

// HistoryCapture copies the current frame's geometry outputs into the
// history images once the frame's compute work has consumed the old ones.
type HistoryCapture struct {
	history      *HistoryImages
	captured     bool
	lastCaptured uint64
	// cleared marks slots reset instead of carried over by the last resize.
	cleared [historySlotCount]bool
}

// LastCaptured returns the frame whose outputs the history holds.
func (c *HistoryCapture) LastCaptured() (uint64, bool) {
	return c.lastCaptured, c.captured
}

// Valid reports whether slot holds the last captured frame. A slot the last
// resize could not scale is cleared and stays invalid until the next capture.
func (c *HistoryCapture) Valid(slot HistorySlot) bool {
	return c.captured && !c.cleared[slot]
}

// Capture records, for every copy table entry: source to TransferSrc,
// destination to TransferDst, a full copy, destination back to its read layout.
func (c *HistoryCapture) Capture(frame *renderer.FrameInfo, gbuffer GBuffer) error {
	for _, e := range copyTable {
		src, dst := gbuffer.Output(e.source), c.history.Image(e.slot)
		if src == nil {
			return fmt.Errorf("capture: geometry output %q missing", e.source)
		}
		if src.Extent() != dst.Extent() || src.Aspect() != dst.Aspect() {
			return fmt.Errorf("%w: capture %s: %s %s, history %s", core.ErrExtentMismatch, e.source, src.Desc.Name, src.Extent(), dst.Extent())
		}
	}

	for _, e := range copyTable {
		src, dst := gbuffer.Output(e.source), c.history.Image(e.slot)
		frame.Layouts.Transition(frame.Stream, src, metadata.ImageLayoutTransferSrc)
		frame.Layouts.Transition(frame.Stream, dst, metadata.ImageLayoutTransferDst)
		frame.Stream.CopyImage(src, metadata.ImageLayoutTransferSrc, dst, metadata.ImageLayoutTransferDst)
		frame.Layouts.Transition(frame.Stream, dst, readLayout(dst))
	}
	c.captured = true
	c.lastCaptured = frame.Index
	c.cleared = [historySlotCount]bool{}
	return nil
}

// carryOver blits the current history into next so a resize keeps the last
// capture. Slots whose format canBlit rejects are cleared to the far plane or
// black instead and returned.
func (c *HistoryCapture) carryOver(stream renderer.CommandStream, layouts *renderer.ImageLayoutCache, next *HistoryImages, canBlit func(metadata.Format) bool) []HistorySlot {
	var cleared []HistorySlot
	for _, e := range copyTable {
		src, dst := c.history.Image(e.slot), next.Image(e.slot)
		if canBlit(src.Desc.Format) && canBlit(dst.Desc.Format) {
			layouts.Transition(stream, src, metadata.ImageLayoutTransferSrc)
			layouts.Transition(stream, dst, metadata.ImageLayoutTransferDst)
			stream.BlitImage(src, metadata.ImageLayoutTransferSrc, dst, metadata.ImageLayoutTransferDst)
		} else {
			layouts.Transition(stream, dst, metadata.ImageLayoutTransferDst)
			if dst.Aspect() == metadata.ImageAspectDepth {
				stream.ClearDepthImage(dst, metadata.ImageLayoutTransferDst, 1.0)
			} else {
				stream.ClearColorImage(dst, metadata.ImageLayoutTransferDst, [4]float32{})
			}
			cleared = append(cleared, e.slot)
		}
		layouts.Transition(stream, dst, readLayout(dst))
	}
	return cleared
}

func (c *HistoryCapture) markCleared(slots []HistorySlot) {
	c.cleared = [historySlotCount]bool{}
	for _, slot := range slots {
		c.cleared[slot] = true
	}
}
