// Feature placement using layered simplex noise.
// A wetness field decides where water bodies cluster; houses avoid cells
// that already hold a fixed feature.
package world

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Field is a scalar value per cell in [0, 1].
type Field struct {
	Width  int
	Height int
	values []float64
}

// At returns the field value at c (wrapped).
func (f *Field) At(c Coord) float64 {
	x, y := mod(c.X, f.Width), mod(c.Y, f.Height)
	return f.values[y*f.Width+x]
}

// Wetness builds a seamless noise field over the torus. Each axis is mapped
// onto a circle so the field tiles at the grid edges like the grid itself.
func Wetness(width, height int, seed int64, scale float64) *Field {
	noise := opensimplex.NewNormalized(seed)
	f := &Field{Width: width, Height: height, values: make([]float64, width*height)}

	rx := scale * float64(width) / (2 * math.Pi)
	ry := scale * float64(height) / (2 * math.Pi)
	for y := 0; y < height; y++ {
		ay := 2 * math.Pi * float64(y) / float64(height)
		for x := 0; x < width; x++ {
			ax := 2 * math.Pi * float64(x) / float64(width)
			f.values[y*width+x] = octaveNoise4(noise,
				rx*math.Cos(ax), rx*math.Sin(ax),
				ry*math.Cos(ay), ry*math.Sin(ay),
				3, 0.5)
		}
	}
	return f
}

// ChooseCells picks n distinct cells not rejected by blocked, each pick
// weighted by weight. Cells with zero weight are only used once every
// positively weighted free cell is gone.
func ChooseCells(rng *rand.Rand, width, height, n int, blocked func(Coord) bool, weight *Field) ([]Coord, error) {
	var free []Coord
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := Coord{X: x, Y: y}
			if blocked == nil || !blocked(c) {
				free = append(free, c)
			}
		}
	}
	if n > len(free) {
		return nil, fmt.Errorf("need %d free cells, only %d available", n, len(free))
	}

	chosen := make([]Coord, 0, n)
	for len(chosen) < n {
		i := weightedIndex(rng, free, weight)
		chosen = append(chosen, free[i])
		free[i] = free[len(free)-1]
		free = free[:len(free)-1]
	}
	return chosen, nil
}

func weightedIndex(rng *rand.Rand, cells []Coord, weight *Field) int {
	if weight == nil {
		return rng.Intn(len(cells))
	}
	total := 0.0
	for _, c := range cells {
		total += weight.At(c)
	}
	if total <= 0 {
		return rng.Intn(len(cells))
	}
	r := rng.Float64() * total
	for i, c := range cells {
		r -= weight.At(c)
		if r < 0 {
			return i
		}
	}
	return len(cells) - 1
}

// octaveNoise4 generates fractal noise by layering multiple frequencies.
func octaveNoise4(noise opensimplex.Noise, x, y, z, w float64, octaves int, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	frequency := 1.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval4(x*frequency, y*frequency, z*frequency, w*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
