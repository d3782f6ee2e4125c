package loaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShaderLoaderAcceptsSPIRV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.spv")
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}, 0o644))
	data, err := (&ShaderLoader{}).Load(path)
	require.NoError(t, err)
	assert.Len(t, data, 8)
}

func TestShaderLoaderRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.spv")
	require.NoError(t, os.WriteFile(short, []byte{0x03, 0x02, 0x23}, 0o644))
	_, err := (&ShaderLoader{}).Load(short)
	assert.Error(t, err)

	magic := filepath.Join(dir, "magic.spv")
	require.NoError(t, os.WriteFile(magic, []byte{1, 2, 3, 4}, 0o644))
	_, err = (&ShaderLoader{}).Load(magic)
	assert.ErrorContains(t, err, "magic")

	_, err = (&ShaderLoader{}).Load(filepath.Join(dir, "missing.spv"))
	assert.Error(t, err)
}
