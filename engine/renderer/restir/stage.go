package restir

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

// Binding slots of the stage's binding layout.
const (
	BindingConfig         uint32 = 0
	BindingReservoirRead  uint32 = 1
	BindingReservoirWrite uint32 = 2
	// BindingHistory is the first of the history images, in HistorySlot order.
	BindingHistory uint32 = 3
	// BindingGBuffer is the first of the geometry outputs, in metadata.GBufferOutputs order.
	BindingGBuffer = BindingHistory + uint32(historySlotCount)
)

// seedSalt decorrelates the per frame seeds from the frame index itself.
const seedSalt uint64 = 0x9e3779b97f4a7c15

// Stage runs one spatiotemporal resampling pass per frame: it prepares the
// frame's resources, binds the reservoir pair by frame parity, executes the
// injected work and captures the geometry outputs for the next frame.
type Stage struct {
	opts     Options
	registry *renderer.Registry
	layouts  *renderer.ImageLayoutCache
	gbuffer  GBuffer
	scene    Scene
	source   PipelineSource
	work     Work

	layout     *renderer.Owned[metadata.BindingLayout]
	pipeline   *renderer.Owned[metadata.Pipeline]
	generation uint64
	uniforms   *uniformBuffer

	swap    SwapController
	history *HistoryImages
	capture HistoryCapture
	fsm     *FrameStateMachine

	extent       metadata.Extent2D
	boundGBuffer map[metadata.GBufferOutput]*metadata.Image
	discard      bool
	config       FrameConfig
	seeds        rand.PCGSource
	initialized  bool
}

// Collaborators are the stage's external inputs. Scene may be nil; Work
// defaults to DispatchWork.
type Collaborators struct {
	GBuffer GBuffer
	Scene   Scene
	Source  PipelineSource
	Work    Work
}

// NewStage wires a stage to the registry that owns its resources and the
// layout cache shared with the frames it records into.
func NewStage(registry *renderer.Registry, layouts *renderer.ImageLayoutCache, c Collaborators, opts Options) *Stage {
	if c.Work == nil {
		c.Work = DispatchWork{}
	}
	return &Stage{
		opts:     opts.normalized(),
		registry: registry,
		layouts:  layouts,
		gbuffer:  c.GBuffer,
		scene:    c.Scene,
		source:   c.Source,
		work:     c.Work,
		fsm:      NewFrameStateMachine(),
	}
}

// Init creates the fixed resources and the resolution dependent ones at the
// geometry buffer's current extent. Any creation failure is returned as is.
func (s *Stage) Init() error {
	if err := s.opts.Validate(); err != nil {
		return err
	}
	layout, err := s.registry.CreateBindingLayout(bindingLayoutDesc())
	if err != nil {
		return err
	}
	s.layout = layout

	inFlight := s.opts.FramesInFlight
	if inFlight == 0 {
		inFlight = s.registry.Backend().FramesInFlight()
	}
	if s.uniforms, err = newUniformBuffer(s.registry, "restir.config", FrameConfigSize, inFlight); err != nil {
		s.Destroy()
		return err
	}
	if s.pipeline, err = s.buildPipeline(); err != nil {
		s.Destroy()
		return err
	}
	s.generation = 1

	extent := s.gbuffer.Extent()
	if extent.IsZero() {
		s.Destroy()
		return fmt.Errorf("%w: geometry buffer is %s", core.ErrInvalidExtent, extent)
	}
	if err := s.createResolutionDependent(extent, false); err != nil {
		s.Destroy()
		return err
	}
	s.discard = true
	s.initialized = true
	core.LogInfo("restir stage ready at %s, K=%d, reservoir pair 2x%d bytes (%s)",
		extent, s.opts.ReservoirSize, s.ReservoirBufferSize(), s.opts.ReservoirMemory)
	return nil
}

func bindingLayoutDesc() metadata.BindingLayoutDesc {
	entries := []metadata.BindingLayoutEntry{
		{Binding: BindingConfig, Kind: metadata.BindingUniformBuffer, Name: "config"},
		{Binding: BindingReservoirRead, Kind: metadata.BindingStorageBuffer, Name: "reservoirs.read"},
		{Binding: BindingReservoirWrite, Kind: metadata.BindingStorageBuffer, Name: "reservoirs.write"},
	}
	for _, e := range copyTable {
		entries = append(entries, metadata.BindingLayoutEntry{
			Binding: BindingHistory + uint32(e.slot),
			Kind:    metadata.BindingSampledImage,
			Name:    "history." + e.slot.String(),
		})
	}
	for i, out := range metadata.GBufferOutputs {
		entries = append(entries, metadata.BindingLayoutEntry{
			Binding: BindingGBuffer + uint32(i),
			Kind:    metadata.BindingSampledImage,
			Name:    "gbuffer." + string(out),
		})
	}
	return metadata.BindingLayoutDesc{Name: "restir", Entries: entries}
}

func (s *Stage) buildPipeline() (*renderer.Owned[metadata.Pipeline], error) {
	cfg, err := s.source.PipelineConfig(s.layout.Get(), PushConstantsSize)
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline config: %w", core.ErrResourceCreation, err)
	}
	return s.registry.CreatePipeline(cfg)
}

// RecordFrame records the frame's four phases into frame.Stream.
func (s *Stage) RecordFrame(frame *renderer.FrameInfo) error {
	if !s.initialized {
		return core.ErrNotInitialized
	}
	if ext := s.gbuffer.Extent(); ext != s.extent {
		return fmt.Errorf("%w: geometry buffer is %s, stage resources are %s", core.ErrExtentMismatch, ext, s.extent)
	}
	if err := s.recordFrame(frame); err != nil {
		s.fsm.Abort()
		return err
	}
	s.discard = false
	return nil
}

func (s *Stage) recordFrame(frame *renderer.FrameInfo) error {
	if err := s.fsm.Enter(frame.Index, PhasePreparing); err != nil {
		return err
	}
	if err := s.prepare(frame); err != nil {
		return err
	}

	if err := s.fsm.Enter(frame.Index, PhaseBound); err != nil {
		return err
	}
	if err := s.bind(frame); err != nil {
		return err
	}

	if err := s.fsm.Enter(frame.Index, PhaseExecuting); err != nil {
		return err
	}
	if err := s.execute(frame); err != nil {
		return err
	}

	if err := s.fsm.Enter(frame.Index, PhaseCapturing); err != nil {
		return err
	}
	if err := s.capture.Capture(frame, s.gbuffer); err != nil {
		return err
	}
	return s.fsm.Enter(frame.Index, PhaseIdle)
}

func (s *Stage) prepare(frame *renderer.FrameInfo) error {
	for _, e := range copyTable {
		img := s.history.Image(e.slot)
		frame.Layouts.Transition(frame.Stream, img, readLayout(img))
	}
	for _, out := range metadata.GBufferOutputs {
		img := s.gbuffer.Output(out)
		frame.Layouts.Transition(frame.Stream, img, readLayout(img))
	}

	s.config = s.frameConfig(frame.Index)
	data, err := s.config.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.uniforms.upload(frame, data); err != nil {
		return err
	}
	return s.work.Prepare(frame)
}

func (s *Stage) frameConfig(frame uint64) FrameConfig {
	o := s.opts
	cfg := FrameConfig{
		ScreenSize:                    s.extent,
		ReservoirSize:                 o.ReservoirSize,
		Frame:                         uint32(frame),
		InitialLightSampleCount:       o.InitialLightSampleCount,
		TemporalSampleCountMultiplier: o.TemporalSampleCountMultiplier,
		SpatialPosThreshold:           o.SpatialPosThreshold,
		SpatialNormalThreshold:        o.SpatialNormalThreshold,
		SpatialNeighbors:              o.SpatialNeighbors,
		SpatialRadius:                 o.SpatialRadius,
		Flags:                         o.Flags,
	}
	if s.scene != nil {
		cfg.PrevViewProjection = s.scene.PreviousViewProjection()
		cfg.CameraPosition = s.scene.CameraPosition().ToVec4(1)
		cfg.NumTriLights = s.scene.LightCount()
	}
	return cfg
}

// Seed returns the random seed pushed for frame.
func (s *Stage) Seed(frame uint64) uint32 {
	s.seeds.Seed(frame ^ seedSalt)
	return uint32(s.seeds.Uint64() >> 32)
}

func (s *Stage) bind(frame *renderer.FrameInfo) error {
	p := s.pipeline.Get()
	frame.Stream.BindPipeline(p)
	frame.Stream.BindBindingTable(p, 0, s.swap.BindingTable(frame.Index))
	push, err := PushConstants{
		Seed:                      s.Seed(frame.Index),
		DiscardPrevFrameReservoir: s.discard,
	}.MarshalBinary()
	if err != nil {
		return err
	}
	frame.Stream.PushConstants(p, push)
	return nil
}

func (s *Stage) execute(frame *renderer.FrameInfo) error {
	pass := &Pass{
		Pipeline: s.pipeline.Get(),
		Extent:   s.extent,
		Read:     s.swap.ReadReservoir(frame.Index),
		Write:    s.swap.WriteReservoir(frame.Index),
	}
	if err := s.work.Execute(frame, pass); err != nil {
		return err
	}
	// The next frame reads what this one wrote and writes what this one read.
	frame.Stream.BufferBarrier(renderer.BufferBarrier{
		Buffer:    pass.Write,
		SrcStage:  metadata.StageComputeShader,
		DstStage:  metadata.StageComputeShader,
		SrcAccess: metadata.AccessShaderWrite,
		DstAccess: metadata.AccessShaderRead,
	})
	frame.Stream.BufferBarrier(renderer.BufferBarrier{
		Buffer:    pass.Read,
		SrcStage:  metadata.StageComputeShader,
		DstStage:  metadata.StageComputeShader,
		SrcAccess: metadata.AccessShaderRead,
		DstAccess: metadata.AccessShaderWrite,
	})
	return nil
}

// Destroy releases everything the stage created. It is safe to call twice.
func (s *Stage) Destroy() {
	s.swap.releaseTables()
	s.swap.releaseReservoirs()
	if s.history != nil {
		s.history.release(s.layouts)
		s.history = nil
	}
	if s.uniforms != nil {
		s.uniforms.release()
		s.uniforms = nil
	}
	s.pipeline.Release()
	s.layout.Release()
	s.initialized = false
}

func (s *Stage) Extent() metadata.Extent2D {
	return s.extent
}

func (s *Stage) Options() Options {
	return s.opts
}

func (s *Stage) Swap() *SwapController {
	return &s.swap
}

func (s *Stage) History() *HistoryImages {
	return s.history
}

func (s *Stage) Capture() *HistoryCapture {
	return &s.capture
}

func (s *Stage) StateMachine() *FrameStateMachine {
	return s.fsm
}

func (s *Stage) Pipeline() *metadata.Pipeline {
	return s.pipeline.Get()
}

// PipelineGeneration counts pipeline builds, starting at 1 after Init.
func (s *Stage) PipelineGeneration() uint64 {
	return s.generation
}

// Config returns the record uploaded by the last Preparing phase.
func (s *Stage) Config() FrameConfig {
	return s.config
}

// Discarding reports whether the next frame ignores the previous reservoirs.
func (s *Stage) Discarding() bool {
	return s.discard
}

func (s *Stage) ReservoirBufferSize() uint64 {
	return ReservoirBufferSize(s.extent, s.opts.ReservoirSize)
}

func (s *Stage) UniformBuffer() *metadata.Buffer {
	if s.uniforms == nil {
		return nil
	}
	return s.uniforms.Buffer()
}
