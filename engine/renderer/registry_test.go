package renderer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
	"github.com/spaghettifunk/restir/engine/renderer/rendertest"
)

func storageBuffer(name string) metadata.BufferDesc {
	return metadata.BufferDesc{Name: name, Size: 64, Usage: metadata.BufferUsageStorage}
}

func TestRegistryTracksLiveResources(t *testing.T) {
	backend := rendertest.NewBackend()
	reg := renderer.NewRegistry(backend)

	a, err := reg.CreateBuffer(storageBuffer("a"))
	require.NoError(t, err)
	img, err := reg.CreateImage(metadata.ImageDesc{
		Name:   "img",
		Extent: metadata.Extent2D{Width: 4, Height: 4},
		Format: metadata.FormatRGBA8Unorm,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Live())
	assert.Equal(t, 1, reg.LiveOf(renderer.ResourceBuffer))
	assert.Equal(t, []string{"buffer:a", "image:img"}, reg.LiveNames())

	a.Release()
	a.Release()
	assert.Nil(t, a.Get())
	assert.False(t, a.Valid())
	assert.Equal(t, 1, reg.Live())
	assert.Equal(t, uint64(2), reg.Created())
	assert.Equal(t, 1, backend.Destroyed[renderer.ResourceBuffer])
	assert.True(t, img.Valid())
}

func TestOwnedNilIsSafe(t *testing.T) {
	var o *renderer.Owned[metadata.Buffer]
	assert.Nil(t, o.Get())
	assert.False(t, o.Valid())
	assert.NotPanics(t, o.Release)
}

func TestRegistryWrapsCreationErrors(t *testing.T) {
	backend := rendertest.NewBackend()
	reg := renderer.NewRegistry(backend)

	backend.Fail[renderer.ResourceBuffer] = true
	_, err := reg.CreateBuffer(storageBuffer("broken"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrResourceCreation)
	assert.ErrorIs(t, err, rendertest.ErrInjected)
	assert.Contains(t, err.Error(), `"broken"`)
	assert.Zero(t, reg.Live())

	_, err = reg.CreateImage(metadata.ImageDesc{Name: "empty", Format: metadata.FormatRGBA8Unorm})
	assert.ErrorIs(t, err, core.ErrInvalidExtent)
	assert.ErrorIs(t, err, core.ErrResourceCreation)
}

func TestRegistryReleaseAllDestroysEverything(t *testing.T) {
	backend := rendertest.NewBackend()
	reg := renderer.NewRegistry(backend)

	buf, err := reg.CreateBuffer(storageBuffer("data"))
	require.NoError(t, err)
	layout, err := reg.CreateBindingLayout(metadata.BindingLayoutDesc{
		Name:    "layout",
		Entries: []metadata.BindingLayoutEntry{{Binding: 0, Kind: metadata.BindingStorageBuffer, Name: "data"}},
	})
	require.NoError(t, err)
	_, err = reg.CreateBindingTable(metadata.BindingTableDesc{
		Name:     "table",
		Layout:   layout.Get(),
		Bindings: []metadata.Binding{{Binding: 0, Buffer: buf.Get()}},
	})
	require.NoError(t, err)
	_, err = reg.CreatePipeline(metadata.PipelineConfig{
		Name:    "pipeline",
		Layouts: []*metadata.BindingLayout{layout.Get()},
	})
	require.NoError(t, err)
	require.Equal(t, 4, backend.Live())

	reg.ReleaseAll()
	assert.Zero(t, reg.Live())
	assert.Zero(t, backend.Live())
	assert.Empty(t, backend.Errors)

	// Handles released by ReleaseAll do not destroy twice.
	buf.Release()
	assert.Equal(t, 1, backend.Destroyed[renderer.ResourceBuffer])
}

func TestLayoutCacheTransitions(t *testing.T) {
	backend := rendertest.NewBackend()
	r := renderer.New(backend)
	img, err := r.Registry().CreateImage(metadata.ImageDesc{
		Name:   "target",
		Extent: metadata.Extent2D{Width: 2, Height: 2},
		Format: metadata.FormatRGBA16Float,
	})
	require.NoError(t, err)

	frame, err := r.BeginFrame()
	require.NoError(t, err)

	b := r.Layouts().Barrier(img.Get(), metadata.ImageLayoutTransferDst)
	assert.Equal(t, metadata.ImageLayoutUndefined, b.OldLayout)
	assert.Equal(t, metadata.StageTopOfPipe, b.SrcStage)
	assert.Equal(t, metadata.StageTransfer, b.DstStage)
	assert.Equal(t, metadata.AccessTransferWrite, b.DstAccess)
	frame.Stream.ImageBarrier(b)

	r.Layouts().Transition(frame.Stream, img.Get(), metadata.ImageLayoutShaderReadOnly)
	r.Layouts().Transition(frame.Stream, img.Get(), metadata.ImageLayoutShaderReadOnly)
	r.Layouts().Transition(frame.Stream, img.Get(), metadata.ImageLayoutGeneral)
	r.Layouts().Transition(frame.Stream, img.Get(), metadata.ImageLayoutGeneral)
	require.NoError(t, r.EndFrame())

	assert.Equal(t, []string{
		"begin-frame 0",
		"barrier target Undefined->TransferDst",
		"barrier target TransferDst->ShaderReadOnly",
		"barrier target ShaderReadOnly->General",
		"barrier target General->General",
		"end-frame",
	}, backend.Commands)
	assert.Equal(t, metadata.ImageLayoutGeneral, backend.Layout(img.Get()))
	assert.Empty(t, backend.Errors)
}

func TestRendererFrameSequencing(t *testing.T) {
	backend := rendertest.NewBackend()
	r := renderer.New(backend)

	assert.ErrorIs(t, r.EndFrame(), core.ErrSequenceViolation)

	f, err := r.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), f.Index)
	_, err = r.BeginFrame()
	assert.ErrorIs(t, err, core.ErrSequenceViolation)
	require.NoError(t, r.EndFrame())

	f, err = r.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Index)
	assert.Same(t, r.Layouts(), f.Layouts)
	require.NoError(t, r.EndFrame())
	assert.Equal(t, uint64(2), r.FrameIndex())
	assert.Equal(t, uint64(2), backend.Submitted)
}

func TestRendererShutdownReleasesResources(t *testing.T) {
	backend := rendertest.NewBackend()
	r := renderer.New(backend)
	_, err := r.Registry().CreateBuffer(storageBuffer("leak"))
	require.NoError(t, err)

	require.NoError(t, r.Shutdown())
	assert.Zero(t, backend.Live())
	assert.True(t, backend.IsShutdown())
	assert.Equal(t, uint64(1), backend.WaitIdles)
}
