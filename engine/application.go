package engine

import (
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
	"github.com/spaghettifunk/restir/engine/renderer/restir"
)

// ApplicationConfig is the root of the TOML configuration file.
type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"y"`
	// Window starting width. Also the render resolution.
	StartWidth uint32 `toml:"width"`
	// Window starting height. Also the render resolution.
	StartHeight uint32 `toml:"height"`
	// Headless renders without creating a window.
	Headless bool `toml:"headless"`
	// Frames stops the run loop after that many frames; zero runs until closed.
	Frames uint64 `toml:"frames"`

	LogLevel string `toml:"log_level"`
	// MetricsInterval is how often, in seconds, frame metrics are logged.
	MetricsInterval float64 `toml:"metrics_interval"`

	Renderer RendererConfig `toml:"renderer"`
	Shaders  ShaderConfig   `toml:"shaders"`
	Scene    SceneConfig    `toml:"scene"`
	Restir   RestirConfig   `toml:"restir"`
}

type RendererConfig struct {
	FramesInFlight uint32 `toml:"frames_in_flight"`
	// Debug enables the validation layer.
	Debug bool `toml:"debug"`
	// DiagnosticsCapacity bounds the number of buffered validation messages.
	DiagnosticsCapacity int `toml:"diagnostics_capacity"`
}

type ShaderConfig struct {
	// Dir is watched for changes and holds the shader sources and binaries.
	Dir string `toml:"dir"`
	// Restir is the resampling compute shader, relative to Dir.
	Restir   string `toml:"restir"`
	Compiler string `toml:"compiler"`
	// HotReload rebuilds pipelines when their sources change.
	HotReload bool `toml:"hot_reload"`
	// GroupSize is the square workgroup edge of the compute shaders.
	GroupSize uint32 `toml:"group_size"`
}

type SceneConfig struct {
	LightCount  uint32  `toml:"light_count"`
	OrbitSpeed  float32 `toml:"orbit_speed"`
	OrbitRadius float32 `toml:"orbit_radius"`
}

type RestirConfig struct {
	ReservoirSize                 uint32  `toml:"reservoir_size"`
	InitialLightSampleCount       uint32  `toml:"initial_light_samples"`
	TemporalSampleCountMultiplier uint32  `toml:"temporal_sample_multiplier"`
	SpatialPosThreshold           float32 `toml:"spatial_pos_threshold"`
	SpatialNormalThreshold        float32 `toml:"spatial_normal_threshold"`
	SpatialNeighbors              uint32  `toml:"spatial_neighbors"`
	SpatialRadius                 float32 `toml:"spatial_radius"`
	TemporalReuse                 bool    `toml:"temporal_reuse"`
	SpatialReuse                  bool    `toml:"spatial_reuse"`
	Unbiased                      bool    `toml:"unbiased"`
	// ReservoirMemory is "device" or "host".
	ReservoirMemory string `toml:"reservoir_memory"`
}

// Options maps the section onto the stage's options.
func (c RestirConfig) Options() restir.Options {
	opts := restir.Options{
		ReservoirSize:                 c.ReservoirSize,
		InitialLightSampleCount:       c.InitialLightSampleCount,
		TemporalSampleCountMultiplier: c.TemporalSampleCountMultiplier,
		SpatialPosThreshold:           c.SpatialPosThreshold,
		SpatialNormalThreshold:        c.SpatialNormalThreshold,
		SpatialNeighbors:              c.SpatialNeighbors,
		SpatialRadius:                 c.SpatialRadius,
		ReservoirMemory:               metadata.MemoryDevicePreferred,
	}
	if c.TemporalReuse {
		opts.Flags |= restir.FlagTemporalReuse
	}
	if c.SpatialReuse {
		opts.Flags |= restir.FlagSpatialReuse
	}
	if c.Unbiased {
		opts.Flags |= restir.FlagUnbiased
	}
	if c.ReservoirMemory == "host" {
		opts.ReservoirMemory = metadata.MemoryHostVisible
	}
	return opts
}

func (c ApplicationConfig) Extent() metadata.Extent2D {
	return metadata.Extent2D{Width: c.StartWidth, Height: c.StartHeight}
}
