package restir

import (
	"fmt"

	"github.com/spaghettifunk/restir/engine/math"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// MaxReservoirSize bounds K so a reservoir record stays addressable by the shaders.
const MaxReservoirSize = 64

type Options struct {
	// ReservoirSize is K, the number of samples a reservoir keeps.
	ReservoirSize                 uint32
	InitialLightSampleCount       uint32
	TemporalSampleCountMultiplier uint32
	SpatialPosThreshold           float32
	SpatialNormalThreshold        float32
	SpatialNeighbors              uint32
	SpatialRadius                 float32
	Flags                         int32
	// ReservoirMemory is where the reservoir pair lives.
	ReservoirMemory metadata.MemoryUsage
	// FramesInFlight sizes the uniform staging ring. Zero means ask the backend.
	FramesInFlight uint32
}

func DefaultOptions() Options {
	return Options{
		ReservoirSize:                 4,
		InitialLightSampleCount:       32,
		TemporalSampleCountMultiplier: 20,
		SpatialPosThreshold:           1.0,
		SpatialNormalThreshold:        0.9,
		SpatialNeighbors:              4,
		SpatialRadius:                 30,
		Flags:                         FlagTemporalReuse | FlagSpatialReuse,
		ReservoirMemory:               metadata.MemoryDevicePreferred,
	}
}

func (o Options) Validate() error {
	if o.ReservoirSize == 0 || o.ReservoirSize > MaxReservoirSize {
		return fmt.Errorf("reservoir size %d out of range [1, %d]", o.ReservoirSize, MaxReservoirSize)
	}
	if o.SpatialRadius < 0 {
		return fmt.Errorf("spatial radius %g is negative", o.SpatialRadius)
	}
	return nil
}

// normalized clamps the thresholds the shaders treat as cosines or distances.
func (o Options) normalized() Options {
	o.SpatialNormalThreshold = math.Clamp(o.SpatialNormalThreshold, 0, 1)
	if o.SpatialPosThreshold < 0 {
		o.SpatialPosThreshold = 0
	}
	return o
}
