package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/restir/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns GLFW. It always provides the Vulkan loader entry point and,
// unless running headless, a window whose framebuffer size changes are
// forwarded to the event bus as EVENT_CODE_RESIZED.
type Platform struct {
	Window *glfw.Window

	events      *core.EventBus
	headless    bool
	initialized bool
	startTime   float64
}

func New(events *core.EventBus) *Platform {
	return &Platform{events: events}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32, headless bool) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	p.initialized = true
	p.headless = headless
	p.startTime = glfw.GetTime()

	if !glfw.VulkanSupported() {
		return fmt.Errorf("glfw reports no Vulkan loader on this system")
	}
	if headless {
		core.LogInfo("platform started headless")
		return nil
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()
	return nil
}

func (p *Platform) Headless() bool {
	return p.headless
}

// VulkanProcAddr returns vkGetInstanceProcAddr as resolved by GLFW.
func (p *Platform) VulkanProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) PumpMessages() {
	if p.initialized && !p.headless {
		glfw.PollEvents()
	}
}

func (p *Platform) ShouldClose() bool {
	return p.Window != nil && p.Window.ShouldClose()
}

// GetAbsoluteTime returns seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	if p.initialized {
		glfw.Terminate()
		p.initialized = false
	}
	return nil
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	// Minimized windows report 0x0; there is nothing to render into.
	if width <= 0 || height <= 0 {
		return
	}
	ctx := core.EventContext{}
	ctx.Data.U32[0] = uint32(width)
	ctx.Data.U32[1] = uint32(height)
	p.events.Fire(core.EVENT_CODE_RESIZED, p, ctx)
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
}
