// Agent spawning: creates the initial population and the larvae laid
// during the run, drawing each agent's individual traits once.
package agents

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/talgya/malaria-world/internal/config"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	rng   *rand.Rand
	clock Clock
	cfg   config.Config

	Humans     HumanParams
	Mosquitoes MosquitoParams
}

// NewSpawner creates a spawner drawing from rng. clock stamps each new
// agent with the current day.
func NewSpawner(cfg config.Config, rng *rand.Rand, clock Clock) *Spawner {
	return &Spawner{
		rng:   rng,
		clock: clock,
		cfg:   cfg,
		Humans: HumanParams{
			RecoveryProbability:    cfg.Human.RecoveryProbability,
			SusceptibleProbability: cfg.Human.SusceptibleProbability,
			MortalityEnabled:       cfg.Human.MortalityEnabled,
			MortalityProbability:   cfg.Human.MortalityProbability,
		},
		Mosquitoes: MosquitoParams{
			DailyMinEggs:           cfg.Mosquito.DailyMinEggs,
			DailyMaxEggs:           cfg.Mosquito.DailyMaxEggs,
			LifetimeMaxEggs:        cfg.Mosquito.LifetimeMaxEggs,
			ExposureProbability:    cfg.Mosquito.ExposureProbability,
			InfectHumanProbability: cfg.Mosquito.InfectHumanProbability,
			DailySteps:             cfg.Mosquito.DailySteps,
			NetKillTypoCompat:      cfg.Houses.NetKillTypoCompat,
		},
	}
}

// NewID draws an identifier from the spawner's RNG so seeded runs repeat.
func (s *Spawner) NewID() AgentID {
	id, err := uuid.NewRandomFromReader(s.rng)
	if err != nil {
		// math/rand readers never fail.
		panic(err)
	}
	return id
}

// Human creates a human in the given state with a freshly drawn incubation period.
func (s *Spawner) Human(seir SEIR) *Human {
	r := s.cfg.Human.IncubationPeriod
	return NewHuman(s.NewID(), &s.Humans, seir, drawDays(s.rng, r.Lo, r.Hi), s.clock.CurrentDay())
}

// Mosquito creates a mosquito with freshly drawn durations.
func (s *Spawner) Mosquito(stage LifeStage, seir SEIR) *Mosquito {
	mc := s.cfg.Mosquito
	tr := MosquitoTraits{
		LarvalDuration:   drawDays(s.rng, mc.LarvalDuration.Lo, mc.LarvalDuration.Hi),
		AdultLifespan:    drawDays(s.rng, mc.AdultLifespan.Lo, mc.AdultLifespan.Hi),
		IncubationPeriod: drawDays(s.rng, mc.IncubationPeriod.Lo, mc.IncubationPeriod.Hi),
	}
	return NewMosquito(s.NewID(), &s.Mosquitoes, stage, seir, tr, s.clock.CurrentDay())
}

// Larva creates an offspring of parent. It inherits the parent's vector state.
func (s *Spawner) Larva(parent *Mosquito) *Mosquito {
	return s.Mosquito(Larva, parent.SEIR)
}

// House creates a house; each intervention is present with its coverage probability.
func (s *Spawner) House() *House {
	net := s.rng.Float64() < s.cfg.Houses.NetCoverage
	spray := s.rng.Float64() < s.cfg.Houses.SprayCoverage
	return NewHouse(s.NewID(), net, spray)
}

// Water creates a water body.
func (s *Spawner) Water() *Water {
	return NewWater(s.NewID())
}

// SpawnHumans creates n humans, the first infected of them Infected and the
// rest Susceptible.
func (s *Spawner) SpawnHumans(n, infected int) []*Human {
	out := make([]*Human, 0, n)
	for i := 0; i < n; i++ {
		seir := Susceptible
		if i < infected {
			seir = Infected
		}
		out = append(out, s.Human(seir))
	}
	return out
}

// SpawnMosquitoes creates n mosquitoes with a random life stage each.
func (s *Spawner) SpawnMosquitoes(n, infected int) []*Mosquito {
	out := make([]*Mosquito, 0, n)
	for i := 0; i < n; i++ {
		seir := Susceptible
		if i < infected {
			seir = Infected
		}
		stage := Larva
		if s.rng.Intn(2) == 1 {
			stage = Adult
		}
		out = append(out, s.Mosquito(stage, seir))
	}
	return out
}
