package systems

import (
	"fmt"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/math"
	"github.com/spaghettifunk/restir/engine/renderer/components"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

/** @brief The camera system configuration. */
type CameraSystemConfig struct {
	/** @brief Maximum number of named cameras besides the default one. */
	MaxCameraCount uint16
	/** @brief Number of triangle lights the scene reports. */
	LightCount uint32
	/** @brief Radians per second the default camera orbits the origin. Zero keeps it still. */
	OrbitSpeed float32
	/** @brief Distance of the default camera from the origin. */
	OrbitRadius float32
}

type cameraLookup struct {
	camera         *components.Camera
	referenceCount uint16
}

// CameraSystem owns the cameras and remembers the view-projection the
// previous frame was rendered with, which temporal reuse needs to
// reproject into last frame's screen space.
type CameraSystem struct {
	config  CameraSystemConfig
	cameras map[string]*cameraLookup
	// A default, non-registered camera that always exists as a fallback.
	defaultCamera *components.Camera

	extent    metadata.Extent2D
	angle     float32
	currentVP math.Mat4
	prevVP    math.Mat4
	hasPrev   bool
}

func NewCameraSystem(config CameraSystemConfig, extent metadata.Extent2D) (*CameraSystem, error) {
	if config.MaxCameraCount == 0 {
		err := fmt.Errorf("func NewCameraSystem - config.MaxCameraCount must be > 0")
		core.LogError("%s", err)
		return nil, err
	}
	if config.OrbitRadius == 0 {
		config.OrbitRadius = 5
	}
	cs := &CameraSystem{
		config:        config,
		cameras:       make(map[string]*cameraLookup, config.MaxCameraCount),
		defaultCamera: components.NewCamera(),
		extent:        extent,
	}
	cs.place()
	cs.currentVP = cs.defaultCamera.ViewProjection(cs.aspect())
	return cs, nil
}

/**
 * @brief Acquires a camera by name, creating it on first use.
 * Internal reference counter is incremented.
 */
func (cs *CameraSystem) Acquire(name string) (*components.Camera, error) {
	if name == components.DEFAULT_CAMERA_NAME {
		return cs.defaultCamera, nil
	}
	l, ok := cs.cameras[name]
	if !ok {
		if len(cs.cameras) >= int(cs.config.MaxCameraCount) {
			err := fmt.Errorf("camera system is full (%d); adjust the config to allow more", cs.config.MaxCameraCount)
			core.LogError("%s", err)
			return nil, err
		}
		core.LogDebug("Creating new camera named '%s'...", name)
		l = &cameraLookup{camera: components.NewCamera()}
		cs.cameras[name] = l
	}
	l.referenceCount++
	return l.camera, nil
}

/**
 * @brief Releases a camera with the given name. When the reference
 * counter reaches 0 the camera is dropped.
 */
func (cs *CameraSystem) Release(name string) {
	if name == components.DEFAULT_CAMERA_NAME {
		core.LogDebug("Cannot release default camera. Nothing was done.")
		return
	}
	l, ok := cs.cameras[name]
	if !ok {
		core.LogWarn("camera release failed lookup of '%s'. Nothing was done.", name)
		return
	}
	l.referenceCount--
	if l.referenceCount < 1 {
		delete(cs.cameras, name)
	}
}

func (cs *CameraSystem) GetDefault() *components.Camera {
	return cs.defaultCamera
}

// Resize changes the aspect ratio used from the next frame on.
func (cs *CameraSystem) Resize(extent metadata.Extent2D) {
	cs.extent = extent
	cs.currentVP = cs.defaultCamera.ViewProjection(cs.aspect())
}

// Advance ends a frame: the view-projection it used becomes the previous
// one and the default camera moves along its orbit.
func (cs *CameraSystem) Advance(deltaTime float64) {
	cs.prevVP = cs.currentVP
	cs.hasPrev = true
	if cs.config.OrbitSpeed != 0 {
		cs.angle += cs.config.OrbitSpeed * float32(deltaTime)
		cs.place()
	}
	cs.currentVP = cs.defaultCamera.ViewProjection(cs.aspect())
}

func (cs *CameraSystem) ViewProjection() math.Mat4 {
	return cs.currentVP
}

// PreviousViewProjection falls back to the current matrix before the first Advance.
func (cs *CameraSystem) PreviousViewProjection() math.Mat4 {
	if !cs.hasPrev {
		return cs.currentVP
	}
	return cs.prevVP
}

func (cs *CameraSystem) CameraPosition() math.Vec3 {
	return cs.defaultCamera.GetPosition()
}

func (cs *CameraSystem) LightCount() uint32 {
	return cs.config.LightCount
}

func (cs *CameraSystem) Shutdown() error {
	cs.cameras = nil
	return nil
}

func (cs *CameraSystem) place() {
	r := cs.config.OrbitRadius
	cs.defaultCamera.SetPosition(math.NewVec3(r*math.Sin(cs.angle), 1, r*math.Cos(cs.angle)))
	cs.defaultCamera.LookAt(math.NewVec3Zero())
}

func (cs *CameraSystem) aspect() float32 {
	if cs.extent.Height == 0 {
		return 1
	}
	return float32(cs.extent.Width) / float32(cs.extent.Height)
}
