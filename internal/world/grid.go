// Package world provides the toroidal square grid the simulation runs on.
// Cells hold any number of occupants; positions are owned by the grid.
package world

import "fmt"

// Coord is a cell position on the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// MooreDirections are the eight neighbor offsets, centre excluded.
var MooreDirections = [8]Coord{
	{X: -1, Y: -1}, {X: 0, Y: -1}, {X: 1, Y: -1},
	{X: -1, Y: 0}, {X: 1, Y: 0},
	{X: -1, Y: 1}, {X: 0, Y: 1}, {X: 1, Y: 1},
}

// Grid is a width × height torus of cells. T is the occupant handle,
// normally an interface implemented by pointer agent types.
type Grid[T comparable] struct {
	Width  int
	Height int

	cells [][]T // row-major, insertion order within a cell
	pos   map[T]Coord
}

// NewGrid creates an empty grid. Width and height must be positive.
func NewGrid[T comparable](width, height int) *Grid[T] {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("world: grid must be at least 1x1, got %dx%d", width, height))
	}
	return &Grid[T]{
		Width:  width,
		Height: height,
		cells:  make([][]T, width*height),
		pos:    make(map[T]Coord),
	}
}

// Wrap maps any coordinate onto the torus.
func (g *Grid[T]) Wrap(c Coord) Coord {
	return Coord{X: mod(c.X, g.Width), Y: mod(c.Y, g.Height)}
}

// Neighbors returns the eight Moore-adjacent cells of c with wraparound.
// On grids narrower than three cells some entries repeat.
func (g *Grid[T]) Neighbors(c Coord) [8]Coord {
	var result [8]Coord
	for i, d := range MooreDirections {
		result[i] = g.Wrap(Coord{X: c.X + d.X, Y: c.Y + d.Y})
	}
	return result
}

// Place puts a at c. Placing an agent that is already on the grid panics.
func (g *Grid[T]) Place(a T, c Coord) {
	if at, ok := g.pos[a]; ok {
		panic(fmt.Sprintf("world: occupant already placed at %v", at))
	}
	c = g.Wrap(c)
	i := g.index(c)
	g.cells[i] = append(g.cells[i], a)
	g.pos[a] = c
}

// Remove takes a off the grid. Removing an unplaced agent panics.
func (g *Grid[T]) Remove(a T) {
	c := g.mustPos(a)
	i := g.index(c)
	cell := g.cells[i]
	for j, o := range cell {
		if o == a {
			g.cells[i] = append(cell[:j], cell[j+1:]...)
			break
		}
	}
	delete(g.pos, a)
}

// Move relocates a to c.
func (g *Grid[T]) Move(a T, c Coord) {
	g.Remove(a)
	g.Place(a, c)
}

// Pos returns the cell a occupies. Asking for an unplaced agent panics.
func (g *Grid[T]) Pos(a T) Coord {
	return g.mustPos(a)
}

// Contains reports whether a is on the grid.
func (g *Grid[T]) Contains(a T) bool {
	_, ok := g.pos[a]
	return ok
}

// Occupants returns the agents at c in placement order. The slice is shared
// with the grid and must not be retained across mutations.
func (g *Grid[T]) Occupants(c Coord) []T {
	return g.cells[g.index(g.Wrap(c))]
}

// Len returns the number of placed occupants.
func (g *Grid[T]) Len() int {
	return len(g.pos)
}

// Each calls fn for every non-empty cell in row-major order.
func (g *Grid[T]) Each(fn func(c Coord, occupants []T)) {
	for i, cell := range g.cells {
		if len(cell) == 0 {
			continue
		}
		fn(Coord{X: i % g.Width, Y: i / g.Width}, cell)
	}
}

// String returns a summary of the grid.
func (g *Grid[T]) String() string {
	return fmt.Sprintf("Grid(%dx%d, occupants=%d)", g.Width, g.Height, g.Len())
}

func (g *Grid[T]) mustPos(a T) Coord {
	c, ok := g.pos[a]
	if !ok {
		panic("world: occupant is not on the grid")
	}
	return c
}

func (g *Grid[T]) index(c Coord) int {
	return c.Y*g.Width + c.X
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}
