package metadata

// GBufferOutput names one screen sized output of the geometry pass.
type GBufferOutput string

const (
	GBufferAlbedo        GBufferOutput = "albedo"
	GBufferNormal        GBufferOutput = "normal"
	GBufferWorldPos      GBufferOutput = "worldpos"
	GBufferMotion        GBufferOutput = "motion"
	GBufferMaterialIndex GBufferOutput = "materialIndex"
	GBufferDepth         GBufferOutput = "depth"
)

// GBufferOutputs lists every output in binding order.
var GBufferOutputs = []GBufferOutput{
	GBufferAlbedo,
	GBufferNormal,
	GBufferWorldPos,
	GBufferMotion,
	GBufferMaterialIndex,
	GBufferDepth,
}

// Format returns the image format the geometry pass writes for the output.
func (o GBufferOutput) Format() Format {
	switch o {
	case GBufferAlbedo:
		return FormatRGBA8Unorm
	case GBufferNormal, GBufferWorldPos:
		return FormatRGBA32Float
	case GBufferMotion:
		return FormatRG16Float
	case GBufferMaterialIndex:
		return FormatR32Uint
	case GBufferDepth:
		return FormatD32Float
	}
	return FormatUndefined
}
