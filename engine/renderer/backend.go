package renderer

import "github.com/spaghettifunk/restir/engine/renderer/metadata"

// Backend creates device resources and submits recorded work. All methods
// are called from the render goroutine.
type Backend interface {
	BufferCreate(desc metadata.BufferDesc) (*metadata.Buffer, error)
	BufferDestroy(buffer *metadata.Buffer)
	// BufferWrite copies data into a host visible buffer at offset.
	BufferWrite(buffer *metadata.Buffer, offset uint64, data []byte) error

	ImageCreate(desc metadata.ImageDesc) (*metadata.Image, error)
	ImageDestroy(image *metadata.Image)

	BindingLayoutCreate(desc metadata.BindingLayoutDesc) (*metadata.BindingLayout, error)
	BindingLayoutDestroy(layout *metadata.BindingLayout)
	BindingTableCreate(desc metadata.BindingTableDesc) (*metadata.BindingTable, error)
	BindingTableDestroy(table *metadata.BindingTable)

	PipelineCreate(config metadata.PipelineConfig) (*metadata.Pipeline, error)
	PipelineDestroy(pipeline *metadata.Pipeline)

	// BeginFrame waits for the in-flight slot of frameIndex to retire and
	// returns a command stream recording into it.
	BeginFrame(frameIndex uint64) (CommandStream, error)
	EndFrame() error
	// SubmitImmediate records fn into a one-shot stream, submits it and waits for completion.
	SubmitImmediate(fn func(CommandStream) error) error
	// WaitIdle drains all work submitted so far.
	WaitIdle() error
	// FramesInFlight is the number of frames the device may pipeline.
	FramesInFlight() uint32
	// SupportsBlit reports whether images of format can be scaled with BlitImage.
	SupportsBlit(format metadata.Format) bool

	Shutdown() error
}

type ImageBarrier struct {
	Image     *metadata.Image
	OldLayout metadata.ImageLayout
	NewLayout metadata.ImageLayout
	SrcStage  metadata.PipelineStageFlags
	DstStage  metadata.PipelineStageFlags
	SrcAccess metadata.AccessFlags
	DstAccess metadata.AccessFlags
}

type BufferBarrier struct {
	Buffer    *metadata.Buffer
	SrcStage  metadata.PipelineStageFlags
	DstStage  metadata.PipelineStageFlags
	SrcAccess metadata.AccessFlags
	DstAccess metadata.AccessFlags
}

// CommandStream records device commands in program order.
type CommandStream interface {
	ImageBarrier(barrier ImageBarrier)
	BufferBarrier(barrier BufferBarrier)

	// CopyImage copies the full extent of src into dst. Both images must
	// have the same extent and aspect.
	CopyImage(src *metadata.Image, srcLayout metadata.ImageLayout, dst *metadata.Image, dstLayout metadata.ImageLayout)
	// BlitImage scales the full extent of src into the full extent of dst.
	BlitImage(src *metadata.Image, srcLayout metadata.ImageLayout, dst *metadata.Image, dstLayout metadata.ImageLayout)
	CopyBuffer(src, dst *metadata.Buffer, size uint64)
	ClearColorImage(image *metadata.Image, layout metadata.ImageLayout, color [4]float32)
	ClearDepthImage(image *metadata.Image, layout metadata.ImageLayout, depth float32)

	BindPipeline(pipeline *metadata.Pipeline)
	BindBindingTable(pipeline *metadata.Pipeline, set uint32, table *metadata.BindingTable)
	PushConstants(pipeline *metadata.Pipeline, data []byte)
	Dispatch(groupsX, groupsY, groupsZ uint32)
}
