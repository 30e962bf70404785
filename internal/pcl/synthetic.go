package pcl

import (
	"math"
	"math/rand"
)

// Generator patterns.
const (
	PatternOrbit = "orbit" // ring of points sweeping around the origin
	PatternWave  = "wave"  // flat sheet with a travelling wave in z
)

// Generator produces deterministic synthetic captures for demos and tests.
// Two generators built with the same seed and settings emit identical
// frames.
type Generator struct {
	PointCount int     // points per frame
	Pattern    string  // PatternOrbit or PatternWave
	AreaRadius float64 // metres, extent of the generated cloud
	NaNRate    float64 // fraction of points emitted with a non-finite axis

	rng   *rand.Rand
	frame int
}

// NewGenerator creates a generator with default settings.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		PointCount: 2048,
		Pattern:    PatternOrbit,
		AreaRadius: 25.0,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// NextFrame generates the points for the next frame. The cloud rotates a
// little each call so replays visibly animate.
func (g *Generator) NextFrame() []Point3D {
	phase := float64(g.frame) * 0.1
	g.frame++

	points := make([]Point3D, 0, g.PointCount)
	for i := 0; i < g.PointCount; i++ {
		var p Point3D
		switch g.Pattern {
		case PatternWave:
			x := (g.rng.Float64()*2 - 1) * g.AreaRadius
			y := (g.rng.Float64()*2 - 1) * g.AreaRadius
			z := math.Sin(x*0.4+phase) * math.Cos(y*0.4) * 3.0
			p = Point3D{X: float32(x), Y: float32(y), Z: float32(z)}
		default: // PatternOrbit
			angle := g.rng.Float64() * 2 * math.Pi
			r := math.Sqrt(g.rng.Float64()) * g.AreaRadius
			x := r * math.Cos(angle+phase)
			y := r * math.Sin(angle+phase)
			z := math.Sin(angle*3+phase)*1.5 + g.rng.Float64()*0.2
			p = Point3D{X: float32(x), Y: float32(y), Z: float32(z)}
		}

		if g.NaNRate > 0 && g.rng.Float64() < g.NaNRate {
			p = g.poison(p)
		}
		points = append(points, p)
	}
	return points
}

// poison replaces one axis of p with a non-finite value.
func (g *Generator) poison(p Point3D) Point3D {
	bad := float32(math.NaN())
	switch g.rng.Intn(3) {
	case 1:
		bad = float32(math.Inf(1))
	case 2:
		bad = float32(math.Inf(-1))
	}
	switch g.rng.Intn(3) {
	case 0:
		p.X = bad
	case 1:
		p.Y = bad
	default:
		p.Z = bad
	}
	return p
}
