// Package agents provides the human, mosquito, house and water agents,
// their per-tick state machines and the rules that couple them.
package agents

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/talgya/malaria-world/internal/world"
)

// AgentID is a unique identifier for an agent.
type AgentID = uuid.UUID

// Kind is the closed set of agent variants.
type Kind uint8

const (
	KindHuman Kind = iota
	KindMosquito
	KindHouse
	KindWater
)

func (k Kind) String() string {
	switch k {
	case KindHuman:
		return "human"
	case KindMosquito:
		return "mosquito"
	case KindHouse:
		return "house"
	case KindWater:
		return "water"
	default:
		return "unknown"
	}
}

// SEIR is the epidemiological state. Mosquitoes never reach Recovered.
type SEIR uint8

const (
	Susceptible SEIR = iota
	Exposed
	Infected
	Recovered
)

// NumSEIR is the number of SEIR states.
const NumSEIR = 4

func (s SEIR) String() string {
	switch s {
	case Susceptible:
		return "susceptible"
	case Exposed:
		return "exposed"
	case Infected:
		return "infected"
	case Recovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// LifeStage of a mosquito.
type LifeStage uint8

const (
	Larva LifeStage = iota
	Adult
)

func (l LifeStage) String() string {
	if l == Larva {
		return "larva"
	}
	return "adult"
}

// Causes of death passed to Env.Kill.
const (
	CauseOldAge  = "old age"
	CauseMalaria = "malaria"
	CauseNet     = "bed net"
	CauseSpray   = "insecticide spray"
)

// Agent is anything that occupies a grid cell and is activated each tick.
type Agent interface {
	ID() AgentID
	Kind() Kind
	Step(env Env)
}

// Grid is the grid specialised to agents.
type Grid = world.Grid[Agent]

// Clock exposes the simulation time to agents.
type Clock interface {
	CurrentTick() uint64
	CurrentDay() uint64
}

// Env is what an agent can see and change while it is activated.
type Env interface {
	Clock
	Rand() *rand.Rand
	Grid() *Grid
	Spawner() *Spawner

	// DrawOutcome picks what a house intervention does to a visiting mosquito.
	DrawOutcome() Outcome

	// Kill removes a from the grid and the live population immediately.
	Kill(a Agent, cause string)
	// Hatch stages a new larva at c; it joins the population after the tick.
	Hatch(m *Mosquito, c world.Coord)
	// Reclassify tells the registry a's category may have changed.
	Reclassify(a Agent)
	// Bitten records a completed bite for statistics.
	Bitten(m *Mosquito, h *Human)
}

// House is a fixed dwelling with optional interventions.
type House struct {
	id    AgentID
	Net   bool `json:"net"`
	Spray bool `json:"spray"`
}

// NewHouse creates a house with the given interventions.
func NewHouse(id AgentID, net, spray bool) *House {
	return &House{id: id, Net: net, Spray: spray}
}

func (h *House) ID() AgentID { return h.id }
func (h *House) Kind() Kind  { return KindHouse }

// Step does nothing; houses never change.
func (h *House) Step(Env) {}

// Water is a fixed breeding site.
type Water struct {
	id AgentID
}

// NewWater creates a water body.
func NewWater(id AgentID) *Water {
	return &Water{id: id}
}

func (w *Water) ID() AgentID { return w.id }
func (w *Water) Kind() Kind  { return KindWater }

// Step does nothing; water bodies never change.
func (w *Water) Step(Env) {}

// firstOfKind returns the first occupant of c with kind k, or nil.
func firstOfKind(g *Grid, c world.Coord, k Kind) Agent {
	for _, o := range g.Occupants(c) {
		if o.Kind() == k {
			return o
		}
	}
	return nil
}

// randomNeighbor picks a uniformly random Moore neighbor of c.
func randomNeighbor(env Env, c world.Coord) world.Coord {
	n := env.Grid().Neighbors(c)
	return n[env.Rand().Intn(len(n))]
}

// drawDays draws an integer uniformly from the inclusive range [lo, hi].
func drawDays(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}
