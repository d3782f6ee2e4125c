package metadata

/** @brief The layout an image is in while a command accesses it. */
type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutShaderReadOnly
	ImageLayoutDepthReadOnly
	ImageLayoutColorAttachment
	ImageLayoutDepthAttachment
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "Undefined"
	case ImageLayoutGeneral:
		return "General"
	case ImageLayoutTransferSrc:
		return "TransferSrc"
	case ImageLayoutTransferDst:
		return "TransferDst"
	case ImageLayoutShaderReadOnly:
		return "ShaderReadOnly"
	case ImageLayoutDepthReadOnly:
		return "DepthReadOnly"
	case ImageLayoutColorAttachment:
		return "ColorAttachment"
	case ImageLayoutDepthAttachment:
		return "DepthAttachment"
	}
	return "Unknown"
}

// ReadOnly layouts need no barrier when an image stays in them.
func (l ImageLayout) ReadOnly() bool {
	return l == ImageLayoutShaderReadOnly || l == ImageLayoutDepthReadOnly || l == ImageLayoutTransferSrc
}

type AccessFlags uint32

const (
	AccessNone                 AccessFlags = 0
	AccessShaderRead           AccessFlags = 1 << 0
	AccessShaderWrite          AccessFlags = 1 << 1
	AccessTransferRead         AccessFlags = 1 << 2
	AccessTransferWrite        AccessFlags = 1 << 3
	AccessUniformRead          AccessFlags = 1 << 4
	AccessHostWrite            AccessFlags = 1 << 5
	AccessColorAttachmentWrite AccessFlags = 1 << 6
	AccessDepthAttachmentWrite AccessFlags = 1 << 7
)

type PipelineStageFlags uint32

const (
	StageTopOfPipe             PipelineStageFlags = 1 << 0
	StageComputeShader         PipelineStageFlags = 1 << 1
	StageTransfer              PipelineStageFlags = 1 << 2
	StageHost                  PipelineStageFlags = 1 << 3
	StageColorAttachmentOutput PipelineStageFlags = 1 << 4
	StageLateFragmentTests     PipelineStageFlags = 1 << 5
	StageBottomOfPipe          PipelineStageFlags = 1 << 6
	StageAllCommands           PipelineStageFlags = 1 << 7
)
