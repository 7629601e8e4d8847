package viz

import (
	"math"

	"github.com/san-kum/satsim/internal/physics"
	"github.com/san-kum/satsim/internal/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Camera projects scene points, in Earth radii, onto the canvas.
type Camera struct {
	RotX, RotY, RotZ float64
	Zoom             float64
	Distance         float64
}

// NewCamera looks down the reference +Z axis, tilted so the equator shows
// as an ellipse.
func NewCamera() *Camera {
	return &Camera{RotX: -1.1, Zoom: 1, Distance: 50}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) RotateZ(a float64) { c.RotZ += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

func (c *Camera) rotate(p r3.Vec) r3.Vec {
	cz, sz := math.Cos(c.RotZ), math.Sin(c.RotZ)
	p.X, p.Y = p.X*cz-p.Y*sz, p.X*sz+p.Y*cz
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p.X, p.Z = p.X*cy+p.Z*sy, -p.X*sy+p.Z*cy
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p.Y, p.Z = p.Y*cx-p.Z*sx, p.Y*sx+p.Z*cx
	return p
}

// Project returns dot coordinates on a sw x sh canvas, the depth toward the
// viewer and whether the point lands on the canvas.
func (c *Camera) Project(p r3.Vec, sw, sh int) (int, int, float64, bool) {
	rot := r3.Scale(c.Zoom, c.rotate(p))
	if rot.Z >= c.Distance-0.1 {
		return 0, 0, 0, false
	}
	scale := c.Distance / (c.Distance - rot.Z)
	unit := float64(min(sw, sh)) / 3
	x := int(rot.X*scale*unit) + sw/2
	y := int(-rot.Y*scale*unit) + sh/2
	return x, y, rot.Z, x >= 0 && x < sw && y >= 0 && y < sh
}

// OrbitView draws the Earth as three great circles, the recent trail and
// the satellite with its body x axis.
type OrbitView struct {
	Camera   *Camera
	Canvas   *Canvas
	trail    []r3.Vec
	capacity int
}

func NewOrbitView(w, h, trail int) *OrbitView {
	return &OrbitView{
		Camera:   NewCamera(),
		Canvas:   NewCanvas(w, h),
		trail:    make([]r3.Vec, 0, trail),
		capacity: trail,
	}
}

// Push appends a position in metres to the trail.
func (v *OrbitView) Push(pos r3.Vec) {
	if len(v.trail) == v.capacity {
		copy(v.trail, v.trail[1:])
		v.trail = v.trail[:len(v.trail)-1]
	}
	v.trail = append(v.trail, r3.Scale(1/physics.REarth, pos))
}

func (v *OrbitView) Reset() { v.trail = v.trail[:0] }

func (v *OrbitView) Trail() int { return len(v.trail) }

func (v *OrbitView) line(a, b r3.Vec) {
	sw, sh := v.Canvas.PixelSize()
	x0, y0, _, ok0 := v.Camera.Project(a, sw, sh)
	x1, y1, _, ok1 := v.Camera.Project(b, sw, sh)
	if ok0 || ok1 {
		v.Canvas.DrawLine(x0, y0, x1, y1)
	}
}

func (v *OrbitView) circle(u, w r3.Vec) {
	const n = 48
	prev := u
	for i := 1; i <= n; i++ {
		a := 2 * math.Pi * float64(i) / n
		p := r3.Add(r3.Scale(math.Cos(a), u), r3.Scale(math.Sin(a), w))
		v.line(prev, p)
		prev = p
	}
}

// Draw renders the scene with the satellite at the last trail point and
// attitude q.
func (v *OrbitView) Draw(q quat.Quaternion) string {
	v.Canvas.Clear()
	x, y, z := r3.Vec{X: 1}, r3.Vec{Y: 1}, r3.Vec{Z: 1}
	v.circle(x, y)
	v.circle(x, z)
	v.circle(y, z)

	for i := 1; i < len(v.trail); i++ {
		v.line(v.trail[i-1], v.trail[i])
	}
	if n := len(v.trail); n > 0 {
		sat := v.trail[n-1]
		v.line(sat, r3.Add(sat, r3.Scale(0.25, quat.Rotate(q, x))))
		sw, sh := v.Canvas.PixelSize()
		if px, py, _, ok := v.Camera.Project(sat, sw, sh); ok {
			v.Canvas.DrawCircle(px, py, 2)
		}
	}
	return v.Canvas.String()
}
