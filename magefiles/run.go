//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine. CONFIG selects a config file.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	args := []string{"run", "."}
	if cfg := os.Getenv("CONFIG"); cfg != "" {
		args = append(args, "-config", cfg)
	}
	fmt.Println("Run engine...")
	_, err := executeCmd("go", withArgs(args...), withStream())
	return err
}

// Runs the test suite with the race detector.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}
