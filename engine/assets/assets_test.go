package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatchedDir(t *testing.T) (*AssetManager, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shaders"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shaders", "restir.comp"), []byte("#version 460\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shaders", "restir.comp.spv"), []byte{0x03, 0x02, 0x23, 0x07}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	t.Cleanup(func() { _ = am.Shutdown() })
	return am, dir
}

func TestInitializeIndexesKnownAssets(t *testing.T) {
	am, dir := newWatchedDir(t)
	assert.Equal(t, []string{filepath.Join(dir, "shaders", "restir.comp")}, am.Assets(AssetTypeShaderSource))
	assert.Equal(t, []string{filepath.Join(dir, "shaders", "restir.comp.spv")}, am.Assets(AssetTypeShaderBinary))
	assert.Equal(t, 2, am.Len())

	data, err := am.LoadAsset(filepath.Join(dir, "shaders", "restir.comp.spv"))
	require.NoError(t, err)
	assert.Len(t, data, 4)

	_, err = am.LoadAsset(filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)
}

func TestWriteIsReportedOnChanges(t *testing.T) {
	am, dir := newWatchedDir(t)
	src := filepath.Join(dir, "shaders", "restir.comp")
	require.NoError(t, os.WriteFile(src, []byte("#version 460\n// edited\n"), 0o644))

	select {
	case got := <-am.Changes():
		assert.Equal(t, src, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestNewDirectoryIsWatched(t *testing.T) {
	am, dir := newWatchedDir(t)
	sub := filepath.Join(dir, "shaders", "extra")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	path := filepath.Join(sub, "blur.comp")
	require.Eventually(t, func() bool {
		// The directory watch is added asynchronously; keep writing until it is seen.
		_ = os.WriteFile(path, []byte("#version 460\n"), 0o644)
		_, ok := am.Info(path)
		return ok
	}, 5*time.Second, 50*time.Millisecond)
}

func TestShutdownClosesChanges(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(t.TempDir()))
	require.NoError(t, am.Shutdown())
	_, open := <-am.Changes()
	assert.False(t, open)
	assert.NoError(t, am.Shutdown())
}

func TestDetermineAssetType(t *testing.T) {
	assert.Equal(t, AssetTypeShaderSource, determineAssetType("a/b.comp"))
	assert.Equal(t, AssetTypeShaderBinary, determineAssetType("a/b.comp.spv"))
	assert.Equal(t, AssetTypeConfig, determineAssetType("restir.toml"))
	assert.Equal(t, AssetTypeNone, determineAssetType("readme.md"))
}
