package renderer

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/midgard-scenegraph/internal/engine/debug"
	"github.com/Faultbox/midgard-scenegraph/internal/engine/render"
	"github.com/Faultbox/midgard-scenegraph/pkg/bounds"
	"github.com/Faultbox/midgard-scenegraph/pkg/math"
)

// vertexStride is the number of floats per vertex: position then color.
const vertexStride = 6

var nextMeshID atomic.Uint64

// boundsColor is the wireframe color of DebugBounds.
var boundsColor = [4]float32{0.2, 1, 0.3, 1}

// Mesh is a triangle list payload for scene.Shape leaves. Geometry is
// uploaded on first draw by the backend that draws it.
type Mesh struct {
	name     string
	id       uint64
	vertices []float32
	box      *bounds.Box
	enabled  atomic.Bool
	tint     atomic.Pointer[[4]float32]

	vao, vbo uint32
}

// NewMesh creates a mesh from interleaved x, y, z, r, g, b triangle
// vertices.
func NewMesh(name string, vertices []float32) (*Mesh, error) {
	if len(vertices) == 0 || len(vertices)%(vertexStride*3) != 0 {
		return nil, fmt.Errorf("mesh %s: %d floats is not a triangle list", name, len(vertices))
	}
	m := &Mesh{
		name:     name,
		id:       nextMeshID.Add(1),
		vertices: vertices,
		box:      bounds.EmptyBox(),
	}
	for i := 0; i < len(vertices); i += vertexStride {
		m.box.ExtendPoint(math.V3(vertices[i], vertices[i+1], vertices[i+2]))
	}
	m.enabled.Store(true)
	m.SetTint([4]float32{1, 1, 1, 1})
	return m, nil
}

// cubeFaces lists the corners of each cube face, counter-clockwise seen
// from outside.
var cubeFaces = [6][4]math.Vec3{
	{{X: -1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1}},
	{{X: 1, Y: -1, Z: -1}, {X: -1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: -1}},
	{{X: -1, Y: -1, Z: -1}, {X: -1, Y: -1, Z: 1}, {X: -1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: -1}},
	{{X: 1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: 1}},
	{{X: -1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: -1}, {X: -1, Y: 1, Z: -1}},
	{{X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: 1}, {X: -1, Y: -1, Z: 1}},
}

// Cube creates an axis aligned cube with edge length size centered on the
// origin. Faces get slightly different shades of color.
func Cube(name string, size float32, color [3]float32) *Mesh {
	h := size / 2
	vertices := make([]float32, 0, 36*vertexStride)
	for f, face := range cubeFaces {
		shade := 1 - float32(f)*0.08
		for _, i := range [6]int{0, 1, 2, 0, 2, 3} {
			p := face[i].Scale(h)
			vertices = append(vertices, p.X, p.Y, p.Z, color[0]*shade, color[1]*shade, color[2]*shade)
		}
	}
	m, _ := NewMesh(name, vertices)
	return m
}

func (m *Mesh) Name() string { return m.name }

func (m *Mesh) Enabled() bool { return m.enabled.Load() }

// SetEnabled shows or hides the mesh.
func (m *Mesh) SetEnabled(on bool) { m.enabled.Store(on) }

// Tint returns the color multiplier.
func (m *Mesh) Tint() [4]float32 { return *m.tint.Load() }

// SetTint sets the color multiplier. An alpha below 1 makes the mesh
// transparent.
func (m *Mesh) SetTint(c [4]float32) { m.tint.Store(&c) }

func (m *Mesh) Transparent() bool { return m.Tint()[3] < 1 }

func (m *Mesh) Equal(o render.Renderable) bool { return o == render.Renderable(m) }

// StateKey groups draws of the same mesh.
func (m *Mesh) StateKey() uint64 { return m.id }

// Bounds is the local box around the vertices.
func (m *Mesh) Bounds() bounds.Volume { return m.box }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.vertices) / (vertexStride * 3) }

func (m *Mesh) Render(ctx render.Context) {
	c, ok := ctx.(*Context)
	if !ok || c.Program == nil || c.Model == nil {
		return
	}
	if m.vao == 0 {
		m.upload()
		c.backend.meshes = append(c.backend.meshes, m)
	}

	mvp := c.ViewProjection.Mul(*c.Model)
	modelView := *c.Model
	if c.Environment != nil {
		modelView = c.Environment.View.Mul(*c.Model)
	}
	p := c.Program
	p.Use()
	p.SetMat4("uMVP", &mvp)
	p.SetMat4("uModelView", &modelView)
	p.SetVec4("uTint", m.Tint())
	if c.Fog.Enabled {
		p.SetVec4("uFogColor", c.Fog.Color)
		p.SetFloat("uFogNear", c.Fog.Near)
		p.SetFloat("uFogFar", c.Fog.Far)
	} else {
		p.SetFloat("uFogNear", 0)
		p.SetFloat("uFogFar", 0)
	}
	gl.BindVertexArray(m.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, int32(len(m.vertices)/vertexStride))
	gl.BindVertexArray(0)
}

// PostRender outlines the mesh bounds when the backend asks for it.
func (m *Mesh) PostRender(ctx render.Context) {
	c, ok := ctx.(*Context)
	if !ok || !c.DebugBounds || c.Model == nil {
		return
	}
	b := c.backend
	b.lineBuf = debug.AppendVolumeLines(b.lineBuf[:0], m.box, *c.Model, debug.DefaultPadding)
	b.drawLines(b.lineBuf, boundsColor)
}

func (m *Mesh) upload() {
	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)

	gl.GenBuffers(1, &m.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(m.vertices)*4, unsafe.Pointer(&m.vertices[0]), gl.STATIC_DRAW)

	// Position attribute (location = 0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, vertexStride*4, nil)
	gl.EnableVertexAttribArray(0)

	// Color attribute (location = 1)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, vertexStride*4, unsafe.Pointer(uintptr(3*4)))
	gl.EnableVertexAttribArray(1)

	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)
}

func (m *Mesh) release() {
	if m.vao != 0 {
		gl.DeleteVertexArrays(1, &m.vao)
		m.vao = 0
	}
	if m.vbo != 0 {
		gl.DeleteBuffers(1, &m.vbo)
		m.vbo = 0
	}
}

// PickRay intersects a local-space ray with the triangles and returns the
// nearest hit distance along dir.
func (m *Mesh) PickRay(origin, dir math.Vec3) (float32, bool) {
	best := float32(-1)
	for i := 0; i+3*vertexStride <= len(m.vertices); i += 3 * vertexStride {
		a := m.vertex(i)
		b := m.vertex(i + vertexStride)
		c := m.vertex(i + 2*vertexStride)
		if t, ok := rayTriangle(origin, dir, a, b, c); ok && (best < 0 || t < best) {
			best = t
		}
	}
	return best, best >= 0
}

func (m *Mesh) vertex(i int) math.Vec3 {
	return math.V3(m.vertices[i], m.vertices[i+1], m.vertices[i+2])
}

// rayTriangle is the Möller-Trumbore intersection test. Both faces hit.
func rayTriangle(origin, dir, a, b, c math.Vec3) (float32, bool) {
	const eps = 1e-7
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < eps {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(a)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	return t, t >= 0
}

// Background clears its scene's viewport to a color.
type Background struct {
	enabled atomic.Bool
	color   atomic.Pointer[[4]float32]
}

// NewBackground creates a background of color.
func NewBackground(color [4]float32) *Background {
	b := &Background{}
	b.enabled.Store(true)
	b.SetColor(color)
	return b
}

func (b *Background) Color() [4]float32         { return *b.color.Load() }
func (b *Background) SetColor(c [4]float32)     { b.color.Store(&c) }
func (b *Background) Enabled() bool             { return b.enabled.Load() }
func (b *Background) SetEnabled(on bool)        { b.enabled.Store(on) }
func (b *Background) Transparent() bool         { return false }
func (b *Background) PostRender(render.Context) {}

func (b *Background) Equal(o render.Renderable) bool { return o == render.Renderable(b) }

func (b *Background) Render(ctx render.Context) {
	if _, ok := ctx.(*Context); !ok {
		return
	}
	c := b.Color()
	gl.ClearColor(c[0], c[1], c[2], c[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// Fog is linear distance fog for the meshes of its scene.
type Fog struct {
	enabled atomic.Bool
	params  atomic.Pointer[FogParams]
}

// ErrFogRange is returned for a fog whose far distance is not beyond near.
var ErrFogRange = errors.New("renderer: fog far must be beyond near")

// NewFog creates linear fog from near to far.
func NewFog(color [4]float32, near, far float32) (*Fog, error) {
	f := &Fog{}
	if err := f.Set(color, near, far); err != nil {
		return nil, err
	}
	f.enabled.Store(true)
	return f, nil
}

// Set replaces the fog parameters.
func (f *Fog) Set(color [4]float32, near, far float32) error {
	if far <= near {
		return ErrFogRange
	}
	f.params.Store(&FogParams{Color: color, Near: near, Far: far, Enabled: true})
	return nil
}

func (f *Fog) Params() FogParams         { return *f.params.Load() }
func (f *Fog) Enabled() bool             { return f.enabled.Load() }
func (f *Fog) SetEnabled(on bool)        { f.enabled.Store(on) }
func (f *Fog) Transparent() bool         { return false }
func (f *Fog) PostRender(render.Context) {}

func (f *Fog) Equal(o render.Renderable) bool { return o == render.Renderable(f) }

// Render makes the fog current for the rest of the scene.
func (f *Fog) Render(ctx render.Context) {
	if c, ok := ctx.(*Context); ok {
		c.Fog = f.Params()
	}
}
