package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
	"github.com/spaghettifunk/restir/engine/renderer/restir"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, metadata.Extent2D{Width: 1280, Height: 720}, cfg.Extent())
	assert.True(t, cfg.Headless)
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
name = "bench"
width = 800
height = 600
frames = 120

[renderer]
frames_in_flight = 3

[restir]
reservoir_size = 8
spatial_reuse = false
reservoir_memory = "host"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bench", cfg.Name)
	assert.Equal(t, metadata.Extent2D{Width: 800, Height: 600}, cfg.Extent())
	assert.Equal(t, uint64(120), cfg.Frames)
	assert.Equal(t, uint32(3), cfg.Renderer.FramesInFlight)
	assert.Equal(t, uint32(8), cfg.Restir.ReservoirSize)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultConfig().Shaders, cfg.Shaders)
	assert.True(t, cfg.Restir.TemporalReuse)
	assert.False(t, cfg.Restir.SpatialReuse)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		is   error
	}{
		{name: "unknown key", data: "colour = \"red\"\n"},
		{name: "syntax", data: "width = = 3\n"},
		{name: "zero width", data: "width = 0\n", is: core.ErrInvalidExtent},
		{name: "frames in flight", data: "[renderer]\nframes_in_flight = 4\n"},
		{name: "reservoir memory", data: "[restir]\nreservoir_memory = \"shared\"\n"},
		{name: "log level", data: "log_level = \"loud\"\n"},
		{name: "empty shader", data: "[shaders]\nrestir = \"\"\n"},
		{name: "reservoir size", data: "[restir]\nreservoir_size = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := DecodeConfig([]byte(tt.data), &cfg)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestRestirConfigOptions(t *testing.T) {
	c := DefaultConfig().Restir
	c.TemporalReuse = false
	c.SpatialReuse = true
	c.Unbiased = true
	c.ReservoirMemory = "host"

	opts := c.Options()
	assert.Equal(t, restir.FlagSpatialReuse|restir.FlagUnbiased, opts.Flags)
	assert.Equal(t, metadata.MemoryHostVisible, opts.ReservoirMemory)
	assert.Equal(t, c.ReservoirSize, opts.ReservoirSize)

	c.ReservoirMemory = "device"
	assert.Equal(t, metadata.MemoryDevicePreferred, c.Options().ReservoirMemory)
}

func TestConfigEncodeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Name = "roundtrip"
	cfg.Restir.SpatialRadius = 12.5

	data, err := cfg.Encode()
	require.NoError(t, err)

	decoded := ApplicationConfig{}
	require.NoError(t, DecodeConfig(data, &decoded))
	assert.Equal(t, cfg, decoded)
}
