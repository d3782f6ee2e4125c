package vulkan

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/google/uuid"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/restir/engine/core"
	"github.com/spaghettifunk/restir/engine/platform"
	"github.com/spaghettifunk/restir/engine/renderer"
	"github.com/spaghettifunk/restir/engine/renderer/metadata"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

type Options struct {
	ApplicationName string
	// FramesInFlight defaults to 2.
	FramesInFlight uint32
	// Debug enables the validation layer and routes its reports to Diagnostics.
	Debug       bool
	Diagnostics *core.DiagnosticSink
}

// VulkanRenderer is a headless compute backend. It never presents; images
// are read back or inspected by the caller.
type VulkanRenderer struct {
	platform *platform.Platform
	options  Options
	context  *VulkanContext

	frame *VulkanFrame
}

func New(p *platform.Platform, options Options) *VulkanRenderer {
	if options.FramesInFlight == 0 {
		options.FramesInFlight = 2
	}
	return &VulkanRenderer{
		platform: p,
		options:  options,
		context: &VulkanContext{
			Allocator:   nil,
			Locks:       NewVulkanLockPool(),
			Diagnostics: options.Diagnostics,
		},
	}
}

func (vr *VulkanRenderer) Initialize() error {
	procAddr := vr.platform.VulkanProcAddr()
	if procAddr == nil {
		return errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	if err := vr.createInstance(); err != nil {
		return err
	}
	if vr.options.Debug {
		if err := vr.createDebugReport(); err != nil {
			return err
		}
	}

	err := DeviceCreate(vr.context, VulkanPhysicalDeviceRequirements{
		Graphics: true,
		Compute:  true,
	})
	if err != nil {
		core.LogError("failed to create device: %s", err)
		return err
	}

	sampler, err := createNearestSampler(vr.context)
	if err != nil {
		return err
	}
	vr.context.NearestSampler = sampler

	vr.context.Frames = make([]*VulkanFrame, vr.options.FramesInFlight)
	for i := range vr.context.Frames {
		cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.CommandPool, true)
		if err != nil {
			return err
		}
		// Created signaled so the first wait on each slot returns at once.
		fence, err := NewFence(vr.context, true)
		if err != nil {
			return err
		}
		vr.context.Frames[i] = &VulkanFrame{Commands: cb, InFlight: fence}
	}

	core.LogInfo("Vulkan renderer initialized on %s with %d frames in flight.", vr.context.Device.Name, vr.options.FramesInFlight)
	return nil
}

func (vr *VulkanRenderer) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vr.options.ApplicationName),
		PEngineName:        VulkanSafeString("restir"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	var extensions []string
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	var layers []string
	if vr.options.Debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		ok, err := validationLayerAvailable()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("required validation layer is missing: %s", validationLayerName)
		}
		layers = append(layers, validationLayerName)
		core.LogInfo("Validation layers enabled.")
	}
	for _, e := range extensions {
		core.LogDebug("Required extension: %s", e)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, vr.context.Allocator, &vr.context.Instance)); err != nil {
		core.LogError("%s", err)
		return err
	}
	if err := vk.InitInstance(vr.context.Instance); err != nil {
		core.LogError("%s", err)
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func validationLayerAvailable() (bool, error) {
	var count uint32
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return false, err
	}
	available := make([]vk.LayerProperties, count)
	if err := resultError("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return false, err
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == validationLayerName {
			return true, nil
		}
	}
	return false, nil
}

func (vr *VulkanRenderer) createDebugReport() error {
	core.LogDebug("Creating Vulkan debugger...")
	sink := vr.context.Diagnostics
	info := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit | vk.DebugReportInformationBit),
		PfnCallback: func(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
			severity := debugReportSeverity(flags)
			msg := fmt.Sprintf("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
			if sink != nil {
				sink.Report(severity, "validation", msg)
			} else {
				logDiagnostic(severity, msg)
			}
			return vk.Bool32(vk.False)
		},
	}
	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &info, nil, &dbg)); err != nil {
		core.LogError("vk.CreateDebugReportCallback failed with %s", err)
		return err
	}
	vr.context.debugReport = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func debugReportSeverity(flags vk.DebugReportFlags) core.DiagnosticSeverity {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		return core.DiagnosticError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		return core.DiagnosticWarning
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		return core.DiagnosticDebug
	}
	return core.DiagnosticInfo
}

func logDiagnostic(severity core.DiagnosticSeverity, msg string) {
	switch severity {
	case core.DiagnosticError:
		core.LogError("%s", msg)
	case core.DiagnosticWarning:
		core.LogWarn("%s", msg)
	case core.DiagnosticDebug:
		core.LogDebug("%s", msg)
	default:
		core.LogInfo("%s", msg)
	}
}

func (vr *VulkanRenderer) BufferCreate(desc metadata.BufferDesc) (*metadata.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q has zero size", desc.Name)
	}
	vb, err := NewVulkanBuffer(vr.context, desc)
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", desc.Name, err)
	}
	return &metadata.Buffer{ID: uuid.New(), Desc: desc, InternalData: vb}, nil
}

func (vr *VulkanRenderer) BufferDestroy(buffer *metadata.Buffer) {
	if vb, ok := buffer.InternalData.(*VulkanBuffer); ok {
		vb.Destroy(vr.context)
	}
	buffer.InternalData = nil
}

func (vr *VulkanRenderer) BufferWrite(buffer *metadata.Buffer, offset uint64, data []byte) error {
	vb, ok := buffer.InternalData.(*VulkanBuffer)
	if !ok {
		return fmt.Errorf("write to unknown buffer %q", buffer.Desc.Name)
	}
	if err := vb.Write(offset, data); err != nil {
		return fmt.Errorf("buffer %q: %w", buffer.Desc.Name, err)
	}
	return nil
}

func (vr *VulkanRenderer) ImageCreate(desc metadata.ImageDesc) (*metadata.Image, error) {
	img := &metadata.Image{ID: uuid.New(), Desc: desc}
	vi, err := NewVulkanImage(vr.context, desc, img.Aspect())
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", desc.Name, err)
	}
	img.InternalData = vi
	return img, nil
}

func (vr *VulkanRenderer) ImageDestroy(image *metadata.Image) {
	if vi, ok := image.InternalData.(*VulkanImage); ok {
		vi.Destroy(vr.context)
	}
	image.InternalData = nil
}

func (vr *VulkanRenderer) BindingLayoutCreate(desc metadata.BindingLayoutDesc) (*metadata.BindingLayout, error) {
	var vl *VulkanBindingLayout
	err := vr.context.Locks.SafeCall(DescriptorManagement, func() (err error) {
		vl, err = NewVulkanBindingLayout(vr.context, desc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("binding layout %q: %w", desc.Name, err)
	}
	return &metadata.BindingLayout{ID: uuid.New(), Desc: desc, InternalData: vl}, nil
}

func (vr *VulkanRenderer) BindingLayoutDestroy(layout *metadata.BindingLayout) {
	if vl, ok := layout.InternalData.(*VulkanBindingLayout); ok {
		vl.Destroy(vr.context)
	}
	layout.InternalData = nil
}

func (vr *VulkanRenderer) BindingTableCreate(desc metadata.BindingTableDesc) (*metadata.BindingTable, error) {
	if desc.Layout == nil {
		return nil, fmt.Errorf("binding table %q has no layout", desc.Name)
	}
	var vt *VulkanBindingTable
	err := vr.context.Locks.SafeCall(DescriptorManagement, func() (err error) {
		vt, err = NewVulkanBindingTable(vr.context, desc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &metadata.BindingTable{ID: uuid.New(), Desc: desc, InternalData: vt}, nil
}

func (vr *VulkanRenderer) BindingTableDestroy(table *metadata.BindingTable) {
	if vt, ok := table.InternalData.(*VulkanBindingTable); ok {
		vr.context.Locks.SafeCall(DescriptorManagement, func() error {
			vt.Destroy(vr.context)
			return nil
		})
	}
	table.InternalData = nil
}

func (vr *VulkanRenderer) PipelineCreate(config metadata.PipelineConfig) (*metadata.Pipeline, error) {
	vp, err := NewComputePipeline(vr.context, config)
	if err != nil {
		return nil, err
	}
	return &metadata.Pipeline{ID: uuid.New(), Config: config, InternalData: vp}, nil
}

func (vr *VulkanRenderer) PipelineDestroy(pipeline *metadata.Pipeline) {
	if vp, ok := pipeline.InternalData.(*VulkanPipeline); ok {
		vp.Destroy(vr.context)
	}
	pipeline.InternalData = nil
}

func (vr *VulkanRenderer) BeginFrame(frameIndex uint64) (renderer.CommandStream, error) {
	if vr.frame != nil {
		return nil, fmt.Errorf("frame %d begun while another frame is recording", frameIndex)
	}
	slot := uint32(frameIndex % uint64(len(vr.context.Frames)))
	frame := vr.context.Frames[slot]
	if err := frame.InFlight.Wait(vr.context, math.MaxUint64); err != nil {
		return nil, fmt.Errorf("frame %d: %w", frameIndex, err)
	}
	if err := frame.Commands.Reset(); err != nil {
		return nil, err
	}
	if err := frame.Commands.Begin(false, false); err != nil {
		return nil, err
	}
	vr.context.CurrentFrame = slot
	vr.frame = frame
	return &commandStream{context: vr.context, cmd: frame.Commands.Handle}, nil
}

func (vr *VulkanRenderer) EndFrame() error {
	frame := vr.frame
	if frame == nil {
		return errors.New("end frame without begin")
	}
	vr.frame = nil
	if err := frame.Commands.End(); err != nil {
		return err
	}
	if err := frame.InFlight.Reset(vr.context); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{frame.Commands.Handle},
	}
	device := vr.context.Device
	return submitWithFence(frame.InFlight, func() error {
		return vr.context.Locks.SafeQueueCall(device.QueueIndex, func() error {
			if err := resultError("vkQueueSubmit", vk.QueueSubmit(device.Queue, 1, []vk.SubmitInfo{submitInfo}, frame.InFlight.Handle)); err != nil {
				return err
			}
			frame.Commands.UpdateSubmitted()
			return nil
		})
	})
}

func (vr *VulkanRenderer) SubmitImmediate(fn func(renderer.CommandStream) error) error {
	device := vr.context.Device
	cb, err := AllocateAndBeginSingleUse(vr.context, device.CommandPool)
	if err != nil {
		return err
	}
	if err := fn(&commandStream{context: vr.context, cmd: cb.Handle}); err != nil {
		// Submit what was recorded so layouts stay consistent with what the caller tracked.
		if serr := cb.EndSingleUse(vr.context, device.CommandPool, device.Queue); serr != nil {
			core.LogError("immediate submission after failure: %s", serr)
		}
		return err
	}
	return cb.EndSingleUse(vr.context, device.CommandPool, device.Queue)
}

func (vr *VulkanRenderer) WaitIdle() error {
	device := vr.context.Device
	if device == nil {
		return nil
	}
	return vr.context.Locks.SafeQueueCall(device.QueueIndex, func() error {
		return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(device.LogicalDevice))
	})
}

func (vr *VulkanRenderer) SupportsBlit(format metadata.Format) bool {
	if vr.context.Device == nil {
		return false
	}
	return vr.context.Device.SupportsBlit(vulkanFormat(format))
}

func (vr *VulkanRenderer) FramesInFlight() uint32 {
	return vr.options.FramesInFlight
}

// Shutdown destroys everything the backend created itself. Resources handed
// out through the Backend interface must already be released.
func (vr *VulkanRenderer) Shutdown() error {
	ctx := vr.context
	if ctx.Device != nil {
		if err := vr.WaitIdle(); err != nil {
			core.LogWarn("wait idle before shutdown: %s", err)
		}
		for _, f := range ctx.Frames {
			f.Commands.Free(ctx, ctx.Device.CommandPool)
			f.InFlight.Destroy(ctx)
		}
		ctx.Frames = nil
		if ctx.NearestSampler != nil {
			vk.DestroySampler(ctx.Device.LogicalDevice, ctx.NearestSampler, ctx.Allocator)
			ctx.NearestSampler = nil
		}
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(ctx)
	}
	if ctx.debugReport != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugReport, ctx.Allocator)
		ctx.debugReport = vk.NullDebugReportCallback
	}
	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
	return nil
}

var _ renderer.Backend = (*VulkanRenderer)(nil)
