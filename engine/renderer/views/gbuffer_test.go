package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
	"github.com/spaghettifunk/restir/engine/renderer/rendertest"
)

func TestGBufferViewClearsOutputs(t *testing.T) {
	backend := rendertest.NewBackend()
	r := renderer.New(backend)
	v := NewRenderViewGBuffer(r.Registry(), r.Layouts())
	require.NoError(t, v.OnCreateRenderView(metadata.Extent2D{Width: 8, Height: 4}))

	f, err := r.BeginFrame()
	require.NoError(t, err)
	require.NoError(t, v.OnRenderRenderView(f))
	require.NoError(t, r.EndFrame())
	require.Empty(t, backend.Errors)

	albedo := v.Output(metadata.GBufferAlbedo)
	depth := v.Output(metadata.GBufferDepth)
	assert.Equal(t, "clear(0,0,0,1)", backend.Contents(albedo))
	assert.Equal(t, "depth(1)", backend.Contents(depth))
	assert.Equal(t, metadata.ImageLayoutColorAttachment, backend.Layout(albedo))
	assert.Equal(t, metadata.ImageLayoutDepthAttachment, backend.Layout(depth))
	assert.Equal(t, metadata.ImageLayoutDepthAttachment, r.Layouts().Get(depth))
}

func TestGBufferViewResizeReplacesOutputs(t *testing.T) {
	backend := rendertest.NewBackend()
	r := renderer.New(backend)
	v := NewRenderViewGBuffer(r.Registry(), r.Layouts())
	require.NoError(t, v.OnCreateRenderView(metadata.Extent2D{Width: 8, Height: 4}))
	before := v.Output(metadata.GBufferNormal)

	require.NoError(t, v.OnResizeRenderView(metadata.Extent2D{Width: 16, Height: 8}))
	after := v.Output(metadata.GBufferNormal)
	assert.NotEqual(t, before.ID, after.ID)
	assert.Equal(t, metadata.Extent2D{Width: 16, Height: 8}, after.Extent())
	assert.Equal(t, len(metadata.GBufferOutputs), r.Registry().Live())

	assert.ErrorIs(t, v.OnResizeRenderView(metadata.Extent2D{}), core.ErrInvalidExtent)
	assert.Equal(t, metadata.Extent2D{Width: 16, Height: 8}, v.Extent())
}

func TestGBufferViewResizeFailureKeepsOutputs(t *testing.T) {
	backend := rendertest.NewBackend()
	r := renderer.New(backend)
	v := NewRenderViewGBuffer(r.Registry(), r.Layouts())
	require.NoError(t, v.OnCreateRenderView(metadata.Extent2D{Width: 8, Height: 4}))
	before := v.Output(metadata.GBufferAlbedo)

	backend.Fail[renderer.ResourceImage] = true
	require.Error(t, v.OnResizeRenderView(metadata.Extent2D{Width: 2, Height: 2}))
	assert.Same(t, before, v.Output(metadata.GBufferAlbedo))
	assert.Equal(t, len(metadata.GBufferOutputs), r.Registry().Live())

	v.OnDestroyRenderView()
	assert.Zero(t, r.Registry().Live())
}
