package systems

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/magefile/mage/sh"

	"github.com/spaghettifunk/restir/engine/assets"
	"github.com/spaghettifunk/restir/engine/assets/loaders"
	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
	"github.com/spaghettifunk/restir/engine/renderer/restir"
)

/** @brief Configuration for the shader system. */
type ShaderSystemConfig struct {
	/** @brief The GLSL to SPIR-V compiler. Defaults to glslc. */
	Compiler string
	/** @brief Passed to the compiler as --target-env. Defaults to vulkan1.1. */
	TargetEnv string
}

// ShaderSystem compiles the compute shader sources of the asset directory
// and recompiles them in the background when they change. Sources that
// compiled successfully since the last call are handed out by Recompiled.
type ShaderSystem struct {
	config ShaderSystemConfig
	assets *assets.AssetManager
	jobs   *JobSystem
	loader loaders.ShaderLoader

	mu        sync.Mutex
	scheduled map[string]bool
	compiled  []string
}

func NewShaderSystem(config ShaderSystemConfig, am *assets.AssetManager, jobs *JobSystem) (*ShaderSystem, error) {
	if am == nil || jobs == nil {
		return nil, fmt.Errorf("shader system needs an asset manager and a job system")
	}
	if config.Compiler == "" {
		config.Compiler = "glslc"
	}
	if config.TargetEnv == "" {
		config.TargetEnv = "vulkan1.1"
	}
	return &ShaderSystem{
		config:    config,
		assets:    am,
		jobs:      jobs,
		scheduled: make(map[string]bool),
	}, nil
}

// BinaryPath is where the SPIR-V compiled from source is written.
func BinaryPath(source string) string {
	return source + ".spv"
}

func (ss *ShaderSystem) compilerAvailable() bool {
	_, err := exec.LookPath(ss.config.Compiler)
	return err == nil
}

// Compile runs the compiler on source and writes BinaryPath(source).
func (ss *ShaderSystem) Compile(source string) error {
	var stderr bytes.Buffer
	out := BinaryPath(source)
	ran, err := sh.Exec(nil, nil, &stderr, ss.config.Compiler, "--target-env="+ss.config.TargetEnv, "-o", out, source)
	if err != nil {
		if !ran {
			return fmt.Errorf("shader compiler %s: %w", ss.config.Compiler, err)
		}
		return fmt.Errorf("compiling %s: %w: %s", source, err, strings.TrimSpace(stderr.String()))
	}
	core.LogDebug("compiled %s -> %s", source, out)
	return nil
}

// CompileAll brings every shader source binary up to date. Without a
// compiler, existing binaries are used as they are.
func (ss *ShaderSystem) CompileAll() error {
	sources := ss.assets.Assets(assets.AssetTypeShaderSource)
	canCompile := ss.compilerAvailable()
	var errs []error
	for _, src := range sources {
		if !isEntryPoint(src) || ss.upToDate(src) {
			continue
		}
		if !canCompile {
			if _, err := os.Stat(BinaryPath(src)); err != nil {
				errs = append(errs, fmt.Errorf("%s has no binary and %s is not installed", src, ss.config.Compiler))
			} else {
				core.LogWarn("%s is not installed, using the stale binary of %s", ss.config.Compiler, src)
			}
			continue
		}
		if err := ss.Compile(src); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ss *ShaderSystem) upToDate(source string) bool {
	src, err := os.Stat(source)
	if err != nil {
		return false
	}
	bin, err := os.Stat(BinaryPath(source))
	if err != nil {
		return false
	}
	return !bin.ModTime().Before(src.ModTime())
}

// isEntryPoint reports whether source is compiled on its own. Shared .glsl
// files are only ever included.
func isEntryPoint(source string) bool {
	return filepath.Ext(source) == ".comp"
}

// OnSourceChanged schedules a background recompile of path. A changed
// include recompiles every entry point.
func (ss *ShaderSystem) OnSourceChanged(path string) {
	info, ok := ss.assets.Info(path)
	if !ok || info.Type != assets.AssetTypeShaderSource {
		return
	}
	targets := []string{path}
	if !isEntryPoint(path) {
		targets = nil
		for _, src := range ss.assets.Assets(assets.AssetTypeShaderSource) {
			if isEntryPoint(src) {
				targets = append(targets, src)
			}
		}
	}
	for _, src := range targets {
		ss.schedule(src)
	}
}

func (ss *ShaderSystem) schedule(source string) {
	ss.mu.Lock()
	if ss.scheduled[source] {
		ss.mu.Unlock()
		return
	}
	ss.scheduled[source] = true
	ss.mu.Unlock()

	done := func() {
		ss.mu.Lock()
		delete(ss.scheduled, source)
		ss.mu.Unlock()
	}
	err := ss.jobs.Submit(JobTask{
		Name: "compile " + source,
		Run:  func() error { return ss.Compile(source) },
		OnComplete: func() {
			ss.mu.Lock()
			delete(ss.scheduled, source)
			ss.compiled = append(ss.compiled, source)
			ss.mu.Unlock()
			core.LogInfo("shader %s recompiled", source)
		},
		OnFailure: func(err error) { done() },
	})
	if err != nil {
		done()
		core.LogWarn("cannot schedule compile of %s: %s", source, err)
	}
}

// Recompiled drains the sources that compiled since the last call.
func (ss *ShaderSystem) Recompiled() restir.ChangedSources {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	changed := restir.NewChangedSources(ss.compiled...)
	ss.compiled = nil
	return changed
}

// LoadBinary reads the compiled SPIR-V of source.
func (ss *ShaderSystem) LoadBinary(source string) ([]byte, error) {
	return ss.loader.Load(BinaryPath(source))
}

// Pipeline returns the pipeline source of a compute shader entry point.
func (ss *ShaderSystem) Pipeline(name, source string) *ShaderPipeline {
	return &ShaderPipeline{system: ss, name: name, source: source}
}

// ShaderPipeline builds a compute pipeline from one compiled source.
type ShaderPipeline struct {
	system *ShaderSystem
	name   string
	source string
}

func (p *ShaderPipeline) Sources() []string {
	return []string{p.source}
}

func (p *ShaderPipeline) PipelineConfig(layout *metadata.BindingLayout, pushConstantSize uint32) (metadata.PipelineConfig, error) {
	code, err := p.system.LoadBinary(p.source)
	if err != nil {
		return metadata.PipelineConfig{}, err
	}
	return metadata.PipelineConfig{
		Name:             p.name,
		EntryPoint:       "main",
		Code:             code,
		Layouts:          []*metadata.BindingLayout{layout},
		PushConstantSize: pushConstantSize,
	}, nil
}

var _ restir.PipelineSource = (*ShaderPipeline)(nil)
