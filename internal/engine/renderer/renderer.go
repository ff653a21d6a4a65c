// Package renderer is the OpenGL output device: a device.Backend drawing
// the instruction lists of the graphics chain into an SDL window, plus the
// Mesh, Background and Fog payloads it understands.
package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/debug"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/device"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/shader"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// Surface is the native window the backend draws into.
type Surface interface {
	MakeCurrent() error
	SwapBuffers()
	GetSize() (int, int)
}

// Config holds renderer configuration.
type Config struct {
	ClearColor  [4]float32
	DebugBounds bool
	// ScreenshotDir is where RequestScreenshot writes files.
	ScreenshotDir string
	// ScreenshotFormat is "png" (default) or "bmp".
	ScreenshotFormat string
}

// Context is the render.Context handed to graphics payloads.
type Context struct {
	Program     *shader.Program
	Environment *render.Environment
	// ViewProjection is Projection x View of the current scene.
	ViewProjection math.Mat4
	// Model is the world transform of the payload being drawn.
	Model *math.Mat4
	Fog   FogParams
	// DebugBounds asks payloads to outline their bounds.
	DebugBounds bool

	backend *Backend
}

// FogParams is the linear fog of the current scene.
type FogParams struct {
	Color     [4]float32
	Near, Far float32
	Enabled   bool
}

// Backend implements device.Backend with OpenGL 4.1.
type Backend struct {
	surface Surface
	config  Config
	log     *zap.Logger

	program *shader.Program
	lines   *shader.Program
	lineVAO uint32
	lineVBO uint32
	lineBuf []float32

	meshes      []*Mesh
	ctx         Context
	width       int
	height      int
	screenshot  atomic.Bool
	debugBounds atomic.Bool
	shots       *debug.Screenshots
}

// New creates the graphics backend. Nothing touches OpenGL until Init.
func New(surface Surface, cfg Config, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Backend{
		surface: surface,
		config:  cfg,
		log:     log,
		shots:   debug.NewScreenshots(cfg.ScreenshotDir, "scene"),
	}
	b.ctx.backend = b
	b.debugBounds.Store(cfg.DebugBounds)
	if cfg.ScreenshotFormat != "" {
		if err := b.shots.SetFormat(cfg.ScreenshotFormat); err != nil {
			log.Warn("keeping png screenshots", zap.Error(err))
		}
	}
	return b
}

// NewDevice wraps a new backend in a device.Base.
func NewDevice(name string, surface Surface, cfg Config, log *zap.Logger, opts ...device.Option) (*device.Base, *Backend) {
	b := New(surface, cfg, log)
	return device.NewBase(name, render.KindGraphics, b, append([]device.Option{device.WithLogger(log)}, opts...)...), b
}

// Init binds the GL context to the drawing goroutine's thread and builds
// the shader programs.
func (b *Backend) Init() error {
	if b.surface == nil {
		return errors.New("no surface")
	}
	runtime.LockOSThread()
	if err := b.surface.MakeCurrent(); err != nil {
		return err
	}
	if err := gl.Init(); err != nil {
		return fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	b.log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.SCISSOR_TEST)

	var err error
	if b.program, err = shader.Compile(meshVertexShader, meshFragmentShader); err != nil {
		return fmt.Errorf("mesh program: %w", err)
	}
	if b.lines, err = shader.Compile(lineVertexShader, lineFragmentShader); err != nil {
		return fmt.Errorf("line program: %w", err)
	}
	b.createLineBuffer()
	b.ctx.Program = b.program
	return nil
}

func (b *Backend) createLineBuffer() {
	gl.GenVertexArrays(1, &b.lineVAO)
	gl.BindVertexArray(b.lineVAO)
	gl.GenBuffers(1, &b.lineVBO)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.lineVBO)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, 3*4, nil)
	gl.EnableVertexAttribArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
}

// RequestScreenshot saves the next finished frame.
func (b *Backend) RequestScreenshot() { b.screenshot.Store(true) }

// SetDebugBounds toggles bounds wireframes.
func (b *Backend) SetDebugBounds(on bool) { b.debugBounds.Store(on) }

func (b *Backend) BeginFrame() error {
	b.width, b.height = b.surface.GetSize()
	gl.Viewport(0, 0, int32(b.width), int32(b.height))
	gl.Scissor(0, 0, int32(b.width), int32(b.height))
	c := b.config.ClearColor
	gl.ClearColor(c[0], c[1], c[2], c[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	b.ctx.DebugBounds = b.debugBounds.Load()
	return nil
}

func (b *Backend) Environment(in *render.Instruction) bool {
	switch in.Op {
	case render.OpStartLayer:
		gl.Clear(gl.DEPTH_BUFFER_BIT)
	case render.OpStartViewport:
		if env := in.Environment; env != nil && env.Viewport.Width > 0 {
			b.setViewport(env.Viewport)
		}
	case render.OpStopViewport:
		gl.Viewport(0, 0, int32(b.width), int32(b.height))
		gl.Scissor(0, 0, int32(b.width), int32(b.height))
	case render.OpStartScene:
		b.ctx.Environment = in.Environment
		b.ctx.Fog = FogParams{}
		if env := in.Environment; env != nil {
			b.ctx.ViewProjection = env.Projection.Mul(env.View)
			if env.Viewport.Width > 0 {
				b.setViewport(env.Viewport)
			}
		}
	case render.OpStopScene:
		b.ctx.Environment = nil
	case render.OpSetViewpoint, render.OpSetBackground, render.OpSetFog:
		if in.Renderable != nil && in.Renderable.Enabled() {
			in.Renderable.Render(&b.ctx)
		}
	case render.OpStartTransparent:
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
		gl.DepthMask(false)
	case render.OpStopTransparent:
		gl.DepthMask(true)
		gl.Disable(gl.BLEND)
	default:
		return false
	}
	return true
}

// setViewport maps a top-left origin rect to GL's bottom-left origin.
func (b *Backend) setViewport(r render.ViewportRect) {
	y := int32(b.height) - int32(r.Y) - int32(r.Height)
	gl.Viewport(int32(r.X), y, int32(r.Width), int32(r.Height))
	gl.Scissor(int32(r.X), y, int32(r.Width), int32(r.Height))
}

func (b *Backend) Context(in *render.Instruction) render.Context {
	b.ctx.Model = &in.Transform
	return &b.ctx
}

func (b *Backend) EndFrame() error {
	if b.screenshot.CompareAndSwap(true, false) {
		b.saveScreenshot()
	}
	b.surface.SwapBuffers()
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl error 0x%x", code)
	}
	return nil
}

func (b *Backend) saveScreenshot() {
	pixels := make([]byte, b.width*b.height*4)
	gl.ReadPixels(0, 0, int32(b.width), int32(b.height), gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&pixels[0]))
	name, err := b.shots.SavePixels(pixels, b.width, b.height)
	if err != nil {
		b.log.Warn("screenshot failed", zap.Error(err))
		return
	}
	b.log.Info("screenshot saved", zap.String("file", name))
}

// Release frees programs and every mesh buffer uploaded by this backend.
func (b *Backend) Release() error {
	b.log.Info("closing renderer", zap.Int("meshes", len(b.meshes)))
	for _, m := range b.meshes {
		m.release()
	}
	b.meshes = nil
	if b.lineVAO != 0 {
		gl.DeleteVertexArrays(1, &b.lineVAO)
		b.lineVAO = 0
	}
	if b.lineVBO != 0 {
		gl.DeleteBuffers(1, &b.lineVBO)
		b.lineVBO = 0
	}
	if b.program != nil {
		b.program.Delete()
	}
	if b.lines != nil {
		b.lines.Delete()
	}
	return nil
}

// drawLines draws world-space line vertices with the current scene's
// view projection.
func (b *Backend) drawLines(vertices []float32, color [4]float32) {
	if len(vertices) == 0 || b.lines == nil {
		return
	}
	b.lines.Use()
	b.lines.SetMat4("uMVP", &b.ctx.ViewProjection)
	b.lines.SetVec4("uColor", color)
	gl.BindVertexArray(b.lineVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.lineVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, unsafe.Pointer(&vertices[0]), gl.STREAM_DRAW)
	gl.DrawArrays(gl.LINES, 0, int32(len(vertices)/3))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
}

const meshVertexShader = `
#version 410 core

layout (location = 0) in vec3 aPos;
layout (location = 1) in vec3 aColor;

uniform mat4 uMVP;
uniform mat4 uModelView;

out vec3 vertexColor;
out float viewDepth;

void main() {
	gl_Position = uMVP * vec4(aPos, 1.0);
	viewDepth = -(uModelView * vec4(aPos, 1.0)).z;
	vertexColor = aColor;
}
`

const meshFragmentShader = `
#version 410 core

in vec3 vertexColor;
in float viewDepth;

uniform vec4 uTint;
uniform vec4 uFogColor;
uniform float uFogNear;
uniform float uFogFar;

out vec4 FragColor;

void main() {
	vec4 color = vec4(vertexColor, 1.0) * uTint;
	float fog = 0.0;
	if (uFogFar > uFogNear) {
		fog = clamp((viewDepth - uFogNear) / (uFogFar - uFogNear), 0.0, 1.0);
	}
	FragColor = vec4(mix(color.rgb, uFogColor.rgb, fog), color.a);
}
`

const lineVertexShader = `
#version 410 core

layout (location = 0) in vec3 aPos;

uniform mat4 uMVP;

void main() {
	gl_Position = uMVP * vec4(aPos, 1.0);
}
`

const lineFragmentShader = `
#version 410 core

uniform vec4 uColor;

out vec4 FragColor;

void main() {
	FragColor = uColor;
}
`
