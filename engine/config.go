package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer/restir"
)

// DefaultConfig renders headless at 1280x720 with the stage's default options.
func DefaultConfig() ApplicationConfig {
	opts := restir.DefaultOptions()
	return ApplicationConfig{
		Name:            "ReSTIR",
		StartPosX:       100,
		StartPosY:       100,
		StartWidth:      1280,
		StartHeight:     720,
		Headless:        true,
		LogLevel:        "info",
		MetricsInterval: 5,
		Renderer: RendererConfig{
			FramesInFlight:      2,
			DiagnosticsCapacity: 256,
		},
		Shaders: ShaderConfig{
			Dir:       "assets/shaders",
			Restir:    "restir.comp",
			Compiler:  "glslc",
			HotReload: true,
			GroupSize: 8,
		},
		Scene: SceneConfig{
			LightCount:  16,
			OrbitSpeed:  0.25,
			OrbitRadius: 5,
		},
		Restir: RestirConfig{
			ReservoirSize:                 opts.ReservoirSize,
			InitialLightSampleCount:       opts.InitialLightSampleCount,
			TemporalSampleCountMultiplier: opts.TemporalSampleCountMultiplier,
			SpatialPosThreshold:           opts.SpatialPosThreshold,
			SpatialNormalThreshold:        opts.SpatialNormalThreshold,
			SpatialNeighbors:              opts.SpatialNeighbors,
			SpatialRadius:                 opts.SpatialRadius,
			TemporalReuse:                 opts.Flags&restir.FlagTemporalReuse != 0,
			SpatialReuse:                  opts.Flags&restir.FlagSpatialReuse != 0,
			ReservoirMemory:               "device",
		},
	}
}

// LoadConfig reads a TOML file over DefaultConfig. Keys the file leaves out
// keep their defaults; unknown keys are an error.
func LoadConfig(path string) (ApplicationConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := DecodeConfig(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig decodes TOML into cfg and validates the result.
func DecodeConfig(data []byte, cfg *ApplicationConfig) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return cfg.Validate()
}

func (c ApplicationConfig) Validate() error {
	if c.StartWidth == 0 || c.StartHeight == 0 {
		return fmt.Errorf("%w: configured resolution %dx%d", core.ErrInvalidExtent, c.StartWidth, c.StartHeight)
	}
	if c.Renderer.FramesInFlight == 0 || c.Renderer.FramesInFlight > 3 {
		return fmt.Errorf("frames_in_flight %d out of range [1, 3]", c.Renderer.FramesInFlight)
	}
	if c.Shaders.Restir == "" {
		return errors.New("shaders.restir is empty")
	}
	if c.Restir.ReservoirMemory != "device" && c.Restir.ReservoirMemory != "host" {
		return fmt.Errorf("restir.reservoir_memory %q is neither device nor host", c.Restir.ReservoirMemory)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return c.Restir.Options().Validate()
}

// Encode renders the configuration as TOML.
func (c ApplicationConfig) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
