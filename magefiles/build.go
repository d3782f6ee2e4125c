//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const shaderDir = "assets/shaders"

type Build mg.Namespace

// Compiles every compute shader under assets/shaders to SPIR-V next to its source.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/restir", "."), withStream())
	return err
}

func buildShaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*.comp"))
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no compute shaders found in %s", shaderDir)
	}
	for _, src := range sources {
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.1", "-o", src+".spv", src), withStream()); err != nil {
			return err
		}
	}
	return nil
}
