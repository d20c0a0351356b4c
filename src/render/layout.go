package render

import (
	"math/rand"

	"github.com/chewxy/math32"
)

const (
	LayoutSeed       = 42
	layoutIterations = 50
)

type Point struct {
	X float32
	Y float32
}

type Edge struct {
	From int
	To   int
}

// SpringLayout places n nodes with the Fruchterman-Reingold force model,
// starting from positions drawn from seed. The result is centered on the
// origin and scaled to [-1, 1]. The same input always gives the same
// layout.
func SpringLayout(n int, edges []Edge, seed int64) []Point {
	pos := make([]Point, n)
	if n < 2 {
		return pos
	}

	rng := rand.New(rand.NewSource(seed))
	for i := range pos {
		pos[i] = Point{X: rng.Float32(), Y: rng.Float32()}
	}

	adjacent := make([][]bool, n)
	for i := range adjacent {
		adjacent[i] = make([]bool, n)
	}
	for _, e := range edges {
		if e.From == e.To || e.From < 0 || e.To < 0 || e.From >= n || e.To >= n {
			continue
		}
		adjacent[e.From][e.To] = true
		adjacent[e.To][e.From] = true
	}

	k := math32.Sqrt(1 / float32(n))
	temperature := float32(0.1)
	cooling := temperature / float32(layoutIterations+1)

	disp := make([]Point, n)
	for iter := 0; iter < layoutIterations; iter++ {
		for i := range disp {
			disp[i] = Point{}
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				dx := pos[i].X - pos[j].X
				dy := pos[i].Y - pos[j].Y
				dist := math32.Max(math32.Sqrt(dx*dx+dy*dy), 0.01)
				// Repulsion between every pair, attraction along edges.
				force := k * k / (dist * dist)
				if adjacent[i][j] {
					force -= dist / k
				}
				disp[i].X += dx * force
				disp[i].Y += dy * force
			}
		}
		for i := range pos {
			length := math32.Max(math32.Sqrt(disp[i].X*disp[i].X+disp[i].Y*disp[i].Y), 0.01)
			step := math32.Min(length, temperature)
			pos[i].X += disp[i].X / length * step
			pos[i].Y += disp[i].Y / length * step
		}
		temperature -= cooling
	}

	return rescale(pos)
}

func rescale(pos []Point) []Point {
	var cx, cy float32
	for _, p := range pos {
		cx += p.X
		cy += p.Y
	}
	cx /= float32(len(pos))
	cy /= float32(len(pos))

	var extent float32
	for i := range pos {
		pos[i].X -= cx
		pos[i].Y -= cy
		extent = math32.Max(extent, math32.Max(math32.Abs(pos[i].X), math32.Abs(pos[i].Y)))
	}
	if extent > 0 {
		for i := range pos {
			pos[i].X /= extent
			pos[i].Y /= extent
		}
	}
	return pos
}
