package renderer

import (
	"fmt"

	"github.com/spaghettifunk/restir/engine/core"
)

// Renderer drives a Backend frame by frame and owns the state that outlives
// a single frame: the resource registry and the image layout cache.
type Renderer struct {
	backend    Backend
	registry   *Registry
	layouts    *ImageLayoutCache
	frameIndex uint64
	current    *FrameInfo
}

func New(backend Backend) *Renderer {
	return &Renderer{
		backend:  backend,
		registry: NewRegistry(backend),
		layouts:  NewImageLayoutCache(),
	}
}

func (r *Renderer) Backend() Backend {
	return r.backend
}

func (r *Renderer) Registry() *Registry {
	return r.registry
}

func (r *Renderer) Layouts() *ImageLayoutCache {
	return r.layouts
}

// FrameIndex is the index the next BeginFrame will use.
func (r *Renderer) FrameIndex() uint64 {
	return r.frameIndex
}

func (r *Renderer) BeginFrame() (*FrameInfo, error) {
	if r.current != nil {
		return nil, fmt.Errorf("%w: frame %d already begun", core.ErrSequenceViolation, r.current.Index)
	}
	stream, err := r.backend.BeginFrame(r.frameIndex)
	if err != nil {
		return nil, err
	}
	r.current = &FrameInfo{
		Index:   r.frameIndex,
		Stream:  stream,
		Layouts: r.layouts,
	}
	return r.current, nil
}

func (r *Renderer) EndFrame() error {
	if r.current == nil {
		return fmt.Errorf("%w: no frame begun", core.ErrSequenceViolation)
	}
	r.current = nil
	err := r.backend.EndFrame()
	// A failed submission still consumes the index so parity keeps advancing.
	r.frameIndex++
	return err
}

// WaitIdle drains the device. Resources may be destroyed once it returns.
func (r *Renderer) WaitIdle() error {
	return r.backend.WaitIdle()
}

func (r *Renderer) Shutdown() error {
	if err := r.backend.WaitIdle(); err != nil {
		core.LogWarn("wait idle before shutdown failed: %s", err)
	}
	if n := r.registry.Live(); n > 0 {
		core.LogDebug("releasing %d live resources", n)
	}
	r.registry.ReleaseAll()
	return r.backend.Shutdown()
}
