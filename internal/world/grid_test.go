package world

import (
	"math/rand"
	"testing"
)

type token struct{ name string }

func TestWrap(t *testing.T) {
	g := NewGrid[*token](5, 4)
	tests := []struct {
		in, want Coord
	}{
		{Coord{0, 0}, Coord{0, 0}},
		{Coord{5, 4}, Coord{0, 0}},
		{Coord{-1, -1}, Coord{4, 3}},
		{Coord{12, -9}, Coord{2, 3}},
	}
	for _, tt := range tests {
		if got := g.Wrap(tt.in); got != tt.want {
			t.Errorf("Wrap(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNeighborsWrapAndExcludeCentre(t *testing.T) {
	g := NewGrid[*token](5, 5)
	got := g.Neighbors(Coord{0, 0})

	want := map[Coord]bool{
		{4, 4}: true, {0, 4}: true, {1, 4}: true,
		{4, 0}: true, {1, 0}: true,
		{4, 1}: true, {0, 1}: true, {1, 1}: true,
	}
	seen := make(map[Coord]bool)
	for _, c := range got {
		if c == (Coord{0, 0}) {
			t.Fatalf("Neighbors included the centre cell")
		}
		if !want[c] {
			t.Errorf("unexpected neighbor %v", c)
		}
		seen[c] = true
	}
	if len(seen) != 8 {
		t.Errorf("got %d distinct neighbors, want 8", len(seen))
	}
}

func TestPlaceMoveRemove(t *testing.T) {
	g := NewGrid[*token](3, 3)
	a, b := &token{"a"}, &token{"b"}

	g.Place(a, Coord{1, 1})
	g.Place(b, Coord{4, 1}) // wraps to (1,1)

	occ := g.Occupants(Coord{1, 1})
	if len(occ) != 2 || occ[0] != a || occ[1] != b {
		t.Fatalf("Occupants = %v, want [a b] in placement order", occ)
	}

	g.Move(a, Coord{2, 2})
	if got := g.Pos(a); got != (Coord{2, 2}) {
		t.Errorf("Pos(a) = %v after move, want (2,2)", got)
	}
	if occ := g.Occupants(Coord{1, 1}); len(occ) != 1 || occ[0] != b {
		t.Errorf("old cell = %v, want [b]", occ)
	}

	g.Remove(b)
	if g.Contains(b) {
		t.Error("b still on grid after Remove")
	}
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1", g.Len())
	}
}

func TestMisusePanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(g *Grid[*token], a *token)
	}{
		{"remove unplaced", func(g *Grid[*token], a *token) { g.Remove(a) }},
		{"move unplaced", func(g *Grid[*token], a *token) { g.Move(a, Coord{}) }},
		{"place twice", func(g *Grid[*token], a *token) {
			g.Place(a, Coord{})
			g.Place(a, Coord{1, 1})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			tt.fn(NewGrid[*token](3, 3), &token{})
		})
	}
}

func TestChooseCellsDistinctAndUnblocked(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	blocked := func(c Coord) bool { return c.X == 0 }
	field := Wetness(6, 6, 7, 0.2)

	cells, err := ChooseCells(rng, 6, 6, 30, blocked, field)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[Coord]bool)
	for _, c := range cells {
		if c.X == 0 {
			t.Errorf("picked blocked cell %v", c)
		}
		if seen[c] {
			t.Errorf("picked %v twice", c)
		}
		seen[c] = true
	}

	if _, err := ChooseCells(rng, 6, 6, 31, blocked, nil); err == nil {
		t.Error("expected error when asking for more cells than are free")
	}
}

func TestWetnessInUnitRange(t *testing.T) {
	f := Wetness(16, 9, 42, 0.15)
	for y := 0; y < 9; y++ {
		for x := 0; x < 16; x++ {
			v := f.At(Coord{x, y})
			if v < 0 || v > 1 {
				t.Fatalf("At(%d,%d) = %g, outside [0,1]", x, y, v)
			}
		}
	}
	if f.At(Coord{16, 9}) != f.At(Coord{0, 0}) {
		t.Error("field does not wrap")
	}
}
