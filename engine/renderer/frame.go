package renderer

// FrameInfo is handed to every stage that records into a frame.
type FrameInfo struct {
	// Index counts frames from zero and never wraps in practice.
	Index   uint64
	Stream  CommandStream
	Layouts *ImageLayoutCache
}
