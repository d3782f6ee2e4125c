package systems

import (
	"github.com/spaghettifunk/restir/engine/assets"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

type SystemManagerConfig struct {
	Camera CameraSystemConfig
	Shader ShaderSystemConfig
	// CompileWorkers is the number of background shader compiles, 1 when zero.
	CompileWorkers int
}

// SystemManager owns the engine systems and shuts them down in reverse
// order of creation.
type SystemManager struct {
	JobSystem    *JobSystem
	CameraSystem *CameraSystem
	ShaderSystem *ShaderSystem
}

func NewSystemManager(config SystemManagerConfig, am *assets.AssetManager, extent metadata.Extent2D) (*SystemManager, error) {
	workers := config.CompileWorkers
	if workers <= 0 {
		workers = 1
	}
	js, err := NewJobSystem(workers, 16)
	if err != nil {
		return nil, err
	}
	cs, err := NewCameraSystem(config.Camera, extent)
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	ss, err := NewShaderSystem(config.Shader, am, js)
	if err != nil {
		js.Shutdown()
		return nil, err
	}
	return &SystemManager{
		JobSystem:    js,
		CameraSystem: cs,
		ShaderSystem: ss,
	}, nil
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.CameraSystem.Shutdown(); err != nil {
		return err
	}
	// Pending compiles finish before the asset manager goes away.
	return sm.JobSystem.Shutdown()
}
