package agents

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/talgya/malaria-world/internal/config"
	"github.com/talgya/malaria-world/internal/world"
)

// fakeEnv is a minimal Env with a controllable clock and intervention draw.
type fakeEnv struct {
	tick, day uint64
	rng       *rand.Rand
	grid      *Grid
	spawner   *Spawner
	outcome   Outcome

	killed  map[Agent]string
	hatched []*Mosquito
	bites   int
}

func newFakeEnv(t *testing.T, w, h int) *fakeEnv {
	t.Helper()
	env := &fakeEnv{
		rng:     rand.New(rand.NewSource(1)),
		grid:    world.NewGrid[Agent](w, h),
		outcome: OutcomeEnter,
		killed:  make(map[Agent]string),
	}
	env.spawner = NewSpawner(config.Default(), env.rng, env)
	return env
}

func (e *fakeEnv) CurrentTick() uint64  { return e.tick }
func (e *fakeEnv) CurrentDay() uint64   { return e.day }
func (e *fakeEnv) Rand() *rand.Rand     { return e.rng }
func (e *fakeEnv) Grid() *Grid          { return e.grid }
func (e *fakeEnv) Spawner() *Spawner    { return e.spawner }
func (e *fakeEnv) DrawOutcome() Outcome { return e.outcome }
func (e *fakeEnv) Reclassify(Agent)     {}

func (e *fakeEnv) Kill(a Agent, cause string) {
	e.grid.Remove(a)
	e.killed[a] = cause
}

func (e *fakeEnv) Hatch(m *Mosquito, c world.Coord) {
	e.hatched = append(e.hatched, m)
}

func (e *fakeEnv) Bitten(*Mosquito, *Human) { e.bites++ }

// nextDay advances the clock to the first tick of the following day.
func (e *fakeEnv) nextDay() {
	e.day++
	e.tick++
}

func testHuman(env *fakeEnv, p *HumanParams, seir SEIR, incubation int) *Human {
	h := NewHuman(uuid.New(), p, seir, incubation, env.day)
	env.grid.Place(h, world.Coord{})
	return h
}

func testMosquito(env *fakeEnv, p *MosquitoParams, stage LifeStage, seir SEIR, tr MosquitoTraits) *Mosquito {
	m := NewMosquito(uuid.New(), p, stage, seir, tr, env.day)
	env.grid.Place(m, world.Coord{})
	return m
}

func adultTraits() MosquitoTraits {
	return MosquitoTraits{LarvalDuration: 2, AdultLifespan: 30, IncubationPeriod: 3}
}
