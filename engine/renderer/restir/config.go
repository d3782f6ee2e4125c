package restir

import (
	"encoding/binary"
	stdmath "math"

	"github.com/spaghettifunk/restir/engine/math"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// FrameConfigSize is the std140 size of FrameConfig on the device.
const FrameConfigSize = 128

// PushConstantsSize is the size of PushConstants on the device.
const PushConstantsSize = 8

// Flags understood by the resampling shaders.
const (
	FlagTemporalReuse int32 = 1 << 0
	FlagSpatialReuse  int32 = 1 << 1
	FlagUnbiased      int32 = 1 << 2
)

// FrameConfig is uploaded once per frame as the stage's uniform buffer.
type FrameConfig struct {
	PrevViewProjection            math.Mat4
	CameraPosition                math.Vec4
	ScreenSize                    metadata.Extent2D
	ReservoirSize                 uint32
	Frame                         uint32
	InitialLightSampleCount       uint32
	TemporalSampleCountMultiplier uint32
	SpatialPosThreshold           float32
	SpatialNormalThreshold        float32
	SpatialNeighbors              uint32
	SpatialRadius                 float32
	Flags                         int32
	NumTriLights                  uint32
}

// MarshalBinary encodes the record in std140 layout.
func (c FrameConfig) MarshalBinary() ([]byte, error) {
	out := make([]byte, FrameConfigSize)
	le := binary.LittleEndian
	for i, v := range c.PrevViewProjection.Data {
		le.PutUint32(out[i*4:], stdmath.Float32bits(v))
	}
	le.PutUint32(out[64:], stdmath.Float32bits(c.CameraPosition.X))
	le.PutUint32(out[68:], stdmath.Float32bits(c.CameraPosition.Y))
	le.PutUint32(out[72:], stdmath.Float32bits(c.CameraPosition.Z))
	le.PutUint32(out[76:], stdmath.Float32bits(c.CameraPosition.W))
	le.PutUint32(out[80:], c.ScreenSize.Width)
	le.PutUint32(out[84:], c.ScreenSize.Height)
	le.PutUint32(out[88:], c.ReservoirSize)
	le.PutUint32(out[92:], c.Frame)
	le.PutUint32(out[96:], c.InitialLightSampleCount)
	le.PutUint32(out[100:], c.TemporalSampleCountMultiplier)
	le.PutUint32(out[104:], stdmath.Float32bits(c.SpatialPosThreshold))
	le.PutUint32(out[108:], stdmath.Float32bits(c.SpatialNormalThreshold))
	le.PutUint32(out[112:], c.SpatialNeighbors)
	le.PutUint32(out[116:], stdmath.Float32bits(c.SpatialRadius))
	le.PutUint32(out[120:], uint32(c.Flags))
	le.PutUint32(out[124:], c.NumTriLights)
	return out, nil
}

// PushConstants are pushed after the binding table is bound.
type PushConstants struct {
	Seed                      uint32
	DiscardPrevFrameReservoir bool
}

func (p PushConstants) MarshalBinary() ([]byte, error) {
	out := make([]byte, PushConstantsSize)
	binary.LittleEndian.PutUint32(out[0:], p.Seed)
	if p.DiscardPrevFrameReservoir {
		binary.LittleEndian.PutUint32(out[4:], 1)
	}
	return out, nil
}

// DecodePushConstants is the inverse of PushConstants.MarshalBinary.
func DecodePushConstants(data []byte) PushConstants {
	if len(data) < PushConstantsSize {
		return PushConstants{}
	}
	return PushConstants{
		Seed:                      binary.LittleEndian.Uint32(data[0:]),
		DiscardPrevFrameReservoir: binary.LittleEndian.Uint32(data[4:]) != 0,
	}
}

// ReservoirRecordSize is the std430 size of one reservoir holding k samples:
// k vec4 samples followed by the sample count, padded to 16 bytes.
func ReservoirRecordSize(k uint32) uint64 {
	return uint64(k)*16 + 16
}

// ReservoirBufferSize is the byte size of one buffer of the reservoir pair.
func ReservoirBufferSize(extent metadata.Extent2D, k uint32) uint64 {
	return extent.Pixels() * uint64(k) * ReservoirRecordSize(k)
}
