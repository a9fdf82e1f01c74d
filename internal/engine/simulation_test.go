package engine

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/talgya/malaria-world/internal/agents"
	"github.com/talgya/malaria-world/internal/config"
	"github.com/talgya/malaria-world/internal/world"
)

// emptyConfig returns a 5x5 world with no initial population.
func emptyConfig() config.Config {
	cfg := config.Default()
	cfg.Grid = config.GridConfig{Width: 5, Height: 5}
	cfg.Population = config.PopulationConfig{}
	cfg.Mosquito.LarvalDuration = config.Fixed(9)
	cfg.Mosquito.AdultLifespan = config.Fixed(10)
	return cfg
}

func newTestSim(t *testing.T, cfg config.Config, seed int64) *Simulation {
	t.Helper()
	s, err := NewSimulation(cfg, seed)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	return s
}

// mosquitoesFirst activates mosquitoes before everyone else.
func mosquitoesFirst(_ *rand.Rand, order []agents.Agent) {
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Kind() == agents.KindMosquito && order[j].Kind() != agents.KindMosquito
	})
}

func always(o agents.Outcome) func(*rand.Rand) agents.Outcome {
	return func(*rand.Rand) agents.Outcome { return o }
}

// checkOccupancy verifies that the grid and the registry hold the same agents.
func checkOccupancy(t *testing.T, s *Simulation) {
	t.Helper()
	if s.grid.Len() != s.registry.Len() {
		t.Fatalf("tick %d: grid holds %d agents, registry %d", s.tick, s.grid.Len(), s.registry.Len())
	}
	seen := make(map[agents.AgentID]int)
	s.grid.Each(func(_ world.Coord, occ []agents.Agent) {
		for _, a := range occ {
			seen[a.ID()]++
		}
	})
	for _, a := range s.registry.Snapshot() {
		if seen[a.ID()] != 1 {
			t.Fatalf("tick %d: agent %s occupies %d cells", s.tick, a.ID(), seen[a.ID()])
		}
	}
}

func TestNewSimulationPopulates(t *testing.T) {
	cfg := config.Default()
	s := newTestSim(t, cfg, 42)

	st := s.Stats()
	if st.Humans.Total() != 3 || st.Humans.Infected != 1 {
		t.Errorf("humans = %+v, want 3 with 1 infected", st.Humans)
	}
	if st.Mosquitoes.Total() != 6 || st.Mosquitoes.Infected != 1 {
		t.Errorf("mosquitoes = %+v, want 6 with 1 infected", st.Mosquitoes)
	}
	if st.AdultMosquitoes+st.Larvae != 6 {
		t.Errorf("adults %d + larvae %d != 6", st.AdultMosquitoes, st.Larvae)
	}
	if st.Houses != 2 || st.WaterBodies != 2 {
		t.Errorf("houses=%d water=%d, want 2 and 2", st.Houses, st.WaterBodies)
	}
	if len(s.History()) != 1 {
		t.Errorf("history has %d samples, want the initial one", len(s.History()))
	}
	checkOccupancy(t, s)

	// Houses and water bodies never share a cell.
	for _, cv := range s.Cells() {
		fixed := 0
		for _, o := range cv.Occupants {
			if o.Kind == "house" || o.Kind == "water" {
				fixed++
			}
		}
		if fixed > 1 {
			t.Errorf("cell (%d,%d) holds %d houses/water bodies", cv.X, cv.Y, fixed)
		}
	}
}

func TestNewSimulationRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Clock.TicksPerDay = 0
	if _, err := NewSimulation(cfg, 1); err == nil {
		t.Fatal("expected error for zero ticks per day")
	}
}

func TestForcedBiteExposesHuman(t *testing.T) {
	cfg := emptyConfig()
	cfg.Mosquito.InfectHumanProbability = 1
	cfg.Mosquito.ExposureProbability = 1
	cfg.Mosquito.DailySteps = 0
	s := newTestSim(t, cfg, 1)
	s.shuffle = mosquitoesFirst

	here := world.Coord{X: 2, Y: 2}
	h := s.spawner.Human(agents.Susceptible)
	m := s.spawner.Mosquito(agents.Adult, agents.Infected)
	s.add(h, here)
	s.add(m, here)

	s.Step()

	if h.SEIR != agents.Exposed {
		t.Fatalf("human is %s, want exposed", h.SEIR)
	}
	st := s.Stats()
	if st.Humans.Exposed != 1 || st.Humans.Susceptible != 0 {
		t.Errorf("human counts = %+v", st.Humans)
	}
	if st.Totals.Bites != 1 || st.Totals.Infections != 1 {
		t.Errorf("totals = %+v, want one bite and one infection", st.Totals)
	}
	if m.SEIR != agents.Infected {
		t.Errorf("mosquito changed to %s", m.SEIR)
	}
}

func TestHouseInterventions(t *testing.T) {
	tests := []struct {
		name       string
		net, spray bool
		typoCompat bool
		wantAlive  bool
		wantCause  string
	}{
		{name: "net kills", net: true, wantCause: agents.CauseNet},
		{name: "spray kills", spray: true, wantCause: agents.CauseSpray},
		{name: "no intervention", wantAlive: true},
		{name: "net kill downgraded", net: true, typoCompat: true, wantAlive: true},
		{name: "spray kill unaffected by compat", spray: true, typoCompat: true, wantCause: agents.CauseSpray},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := emptyConfig()
			cfg.Mosquito.DailySteps = 0
			cfg.Houses.NetKillTypoCompat = tt.typoCompat
			s := newTestSim(t, cfg, 3)
			s.drawOutcome = always(agents.OutcomeKill)

			here := world.Coord{X: 1, Y: 1}
			m := s.spawner.Mosquito(agents.Adult, agents.Susceptible)
			s.add(agents.NewHouse(s.spawner.NewID(), tt.net, tt.spray), here)
			s.add(m, here)

			s.Step()

			if got := s.registry.Alive(m.ID()); got != tt.wantAlive {
				t.Fatalf("alive = %v, want %v", got, tt.wantAlive)
			}
			if got := s.grid.Contains(m); got != tt.wantAlive {
				t.Fatalf("on grid = %v, want %v", got, tt.wantAlive)
			}
			checkOccupancy(t, s)

			st := s.Stats()
			if tt.wantAlive {
				if st.Mosquitoes.Total() != 1 || st.Totals.HouseKills != 0 {
					t.Errorf("stats = %+v", st)
				}
				return
			}
			if st.Mosquitoes.Total() != 0 || st.AdultMosquitoes != 0 {
				t.Errorf("mosquito still counted: %+v", st.Mosquitoes)
			}
			if st.Totals.HouseKills != 1 || st.Totals.MosquitoDeaths != 1 {
				t.Errorf("totals = %+v", st.Totals)
			}
			ev := s.Events(1)
			if len(ev) != 1 || ev[0].Category != "house" {
				t.Fatalf("events = %+v", ev)
			}
			want := "killed by " + tt.wantCause
			if d := ev[0].Description; len(d) < len(want) || d[len(d)-len(want):] != want {
				t.Errorf("event %q does not end in %q", d, want)
			}
		})
	}
}

func TestEggsJoinAfterTick(t *testing.T) {
	cfg := emptyConfig()
	cfg.Mosquito.DailySteps = 0
	cfg.Mosquito.DailyMinEggs = 3
	cfg.Mosquito.DailyMaxEggs = 3
	cfg.Mosquito.LifetimeMaxEggs = 10
	s := newTestSim(t, cfg, 5)

	here := world.Coord{X: 4, Y: 0}
	m := s.spawner.Mosquito(agents.Adult, agents.Infected)
	m.LookingForWater = true
	s.add(s.spawner.Water(), here)
	s.add(m, here)

	s.Step()

	if s.registry.Pending() != 0 {
		t.Fatalf("%d larvae still staged", s.registry.Pending())
	}
	st := s.Stats()
	if st.Larvae != 3 || st.Totals.Hatched != 3 {
		t.Fatalf("larvae=%d hatched=%d, want 3", st.Larvae, st.Totals.Hatched)
	}
	if s.LarvalMosquitoes() != 3 || s.AdultMosquitoes() != 1 {
		t.Errorf("larval=%d adult=%d, want 3 and 1", s.LarvalMosquitoes(), s.AdultMosquitoes())
	}
	if st.Mosquitoes.Infected != 4 {
		t.Errorf("infected mosquitoes = %d, want parent plus 3 larvae", st.Mosquitoes.Infected)
	}
	larvae := 0
	for _, a := range s.grid.Occupants(here) {
		if l, ok := a.(*agents.Mosquito); ok && l.Stage == agents.Larva {
			larvae++
			if l.Age != 0 {
				t.Errorf("new larva has age %d", l.Age)
			}
		}
	}
	if larvae != 3 {
		t.Errorf("%d larvae at the water cell, want 3", larvae)
	}
	if ev := s.Events(1); len(ev) != 1 || ev[0].Category != "birth" {
		t.Errorf("events = %+v", ev)
	}
	checkOccupancy(t, s)
}

func busyConfig() config.Config {
	cfg := config.Default()
	cfg.Grid = config.GridConfig{Width: 12, Height: 12}
	cfg.Population = config.PopulationConfig{
		Humans:             20,
		Mosquitoes:         40,
		Houses:             15,
		WaterBodies:        15,
		InfectedHumans:     0.5,
		InfectedMosquitoes: 0.5,
	}
	cfg.Mosquito.LarvalDuration = config.Range{Lo: 1, Hi: 3}
	cfg.Mosquito.AdultLifespan = config.Range{Lo: 2, Hi: 5}
	cfg.Mosquito.IncubationPeriod = config.Range{Lo: 1, Hi: 2}
	cfg.Mosquito.DailyMaxEggs = 5
	cfg.Mosquito.LifetimeMaxEggs = 10
	cfg.Mosquito.ExposureProbability = 0.5
	cfg.Mosquito.DailySteps = 4
	cfg.Human.IncubationPeriod = config.Range{Lo: 1, Hi: 3}
	cfg.Human.RecoveryProbability = 0.2
	cfg.Human.SusceptibleProbability = 0.2
	cfg.Placement.ClusteredWater = true
	cfg.Clock.TicksPerDay = 4
	return cfg
}

func TestPopulationConservation(t *testing.T) {
	s := newTestSim(t, busyConfig(), 99)
	checkOccupancy(t, s)

	for i := 0; i < 80; i++ {
		before := s.Stats()
		s.Step()
		after := s.Stats()
		checkOccupancy(t, s)

		born := int(after.Totals.Hatched - before.Totals.Hatched)
		died := int(after.Totals.MosquitoDeaths - before.Totals.MosquitoDeaths)
		if want := before.Mosquitoes.Total() + born - died; after.Mosquitoes.Total() != want {
			t.Fatalf("tick %d: %d mosquitoes, want %d (born %d, died %d)",
				after.Tick, after.Mosquitoes.Total(), want, born, died)
		}
		if after.Mosquitoes.Recovered != 0 {
			t.Fatalf("tick %d: %d recovered mosquitoes", after.Tick, after.Mosquitoes.Recovered)
		}
		if after.AdultMosquitoes+after.Larvae != after.Mosquitoes.Total() {
			t.Fatalf("tick %d: stage counts do not add up", after.Tick)
		}
		if after.Humans.Total() != 20 || after.HumanDeaths != 0 {
			t.Fatalf("tick %d: humans changed without mortality: %+v", after.Tick, after.Humans)
		}
		if after.Houses != 15 || after.WaterBodies != 15 {
			t.Fatalf("tick %d: fixed agents changed", after.Tick)
		}
	}

	if got := len(s.History()); got != 1+80/4 {
		t.Errorf("history has %d samples, want %d", got, 1+80/4)
	}
}

func TestSameSeedSameRun(t *testing.T) {
	a := newTestSim(t, busyConfig(), 7)
	b := newTestSim(t, busyConfig(), 7)
	for i := 0; i < 48; i++ {
		a.Step()
		b.Step()
	}
	if a.Stats() != b.Stats() {
		t.Fatalf("stats diverged:\n%+v\n%+v", a.Stats(), b.Stats())
	}
	if !reflect.DeepEqual(a.Cells(), b.Cells()) {
		t.Error("grids diverged")
	}
}

func TestDayBoundaryIndependentOfResolution(t *testing.T) {
	for _, tpd := range []int{1, 6, 24} {
		cfg := emptyConfig()
		cfg.Population.Mosquitoes = 10
		cfg.Mosquito.LarvalDuration = config.Fixed(1)
		cfg.Mosquito.AdultLifespan = config.Fixed(100)
		cfg.Mosquito.LifetimeMaxEggs = 0
		cfg.Clock.TicksPerDay = tpd
		s := newTestSim(t, cfg, 11)

		start := make(map[agents.AgentID]int)
		for _, a := range s.registry.Snapshot() {
			start[a.ID()] = a.(*agents.Mosquito).Age
		}

		for i := 0; i < 3*tpd; i++ {
			s.Step()
		}
		if s.CurrentDay() != 3 {
			t.Fatalf("ticks/day %d: day = %d, want 3", tpd, s.CurrentDay())
		}
		// Agents notice the boundary on their next activation.
		s.Step()
		for _, a := range s.registry.Snapshot() {
			m := a.(*agents.Mosquito)
			if m.Age != start[m.ID()]+3 {
				t.Errorf("ticks/day %d: mosquito aged %d days, want 3", tpd, m.Age-start[m.ID()])
			}
			if m.Stage != agents.Adult {
				t.Errorf("ticks/day %d: larva did not mature", tpd)
			}
		}
	}
}

func TestMalariaMortality(t *testing.T) {
	cfg := emptyConfig()
	cfg.Population.Humans = 5
	cfg.Population.InfectedHumans = 1
	cfg.Human.RecoveryProbability = 0
	cfg.Human.MortalityEnabled = true
	cfg.Human.MortalityProbability = 1
	cfg.Clock.TicksPerDay = 2
	s := newTestSim(t, cfg, 13)

	// Day 0 passes without SEIR progress; the first boundary kills.
	s.Step()
	s.Step()
	if s.HumanDeaths() != 0 {
		t.Fatalf("%d deaths before the first day boundary", s.HumanDeaths())
	}
	s.Step()

	if s.HumanDeaths() != 5 {
		t.Fatalf("HumanDeaths = %d, want 5", s.HumanDeaths())
	}
	if s.HumanCounts().Total() != 0 {
		t.Errorf("humans still counted: %+v", s.HumanCounts())
	}
	deaths := 0
	for _, ev := range s.Events(0) {
		if ev.Category == "death" {
			deaths++
		}
	}
	if deaths != 5 {
		t.Errorf("%d death events, want 5", deaths)
	}
	checkOccupancy(t, s)
}

func TestMortalityDisabledKeepsHumans(t *testing.T) {
	cfg := emptyConfig()
	cfg.Population.Humans = 5
	cfg.Population.InfectedHumans = 1
	cfg.Human.RecoveryProbability = 0
	cfg.Clock.TicksPerDay = 1
	s := newTestSim(t, cfg, 13)

	for i := 0; i < 30; i++ {
		s.Step()
	}
	if s.HumanDeaths() != 0 || s.HumanCounts().Infected != 5 {
		t.Errorf("deaths=%d counts=%+v", s.HumanDeaths(), s.HumanCounts())
	}
}

func TestEventsLimit(t *testing.T) {
	s := newTestSim(t, emptyConfig(), 1)
	for i := 0; i < 5; i++ {
		s.emit("test", "event %d", i)
	}
	if got := s.Events(2); len(got) != 2 || got[1].Description != "event 4" {
		t.Errorf("Events(2) = %+v", got)
	}
	if got := s.Events(0); len(got) != 5 {
		t.Errorf("Events(0) returned %d events, want all 5", len(got))
	}
	if got := s.EventsAfter(3); len(got) != 2 || got[0].Seq != 4 {
		t.Errorf("EventsAfter(3) = %+v", got)
	}
	if got := s.EventsAfter(5); len(got) != 0 {
		t.Errorf("EventsAfter(5) = %+v", got)
	}
}

// netTrap puts n adult mosquitoes on a netted house with every net draw
// forced to kill, so one tick emits n events.
func netTrap(t *testing.T, n int) *Simulation {
	t.Helper()
	cfg := emptyConfig()
	cfg.Mosquito.DailySteps = 0
	cfg.Clock.TicksPerDay = 1
	s := newTestSim(t, cfg, 11)
	s.drawOutcome = always(agents.OutcomeKill)

	here := world.Coord{X: 2, Y: 2}
	s.add(agents.NewHouse(s.spawner.NewID(), true, false), here)
	for i := 0; i < n; i++ {
		s.add(s.spawner.Mosquito(agents.Adult, agents.Susceptible), here)
	}
	return s
}

func TestEventLogTrimmedAtDayEnd(t *testing.T) {
	s := netTrap(t, maxEvents+500)
	s.Step()

	got := s.EventsAfter(0)
	if len(got) != maxEvents {
		t.Fatalf("kept %d events, want %d", len(got), maxEvents)
	}
	if got[0].Seq != 501 {
		t.Errorf("oldest kept event has seq %d, want 501", got[0].Seq)
	}
}

func TestHeldEventsSurviveUntilAcked(t *testing.T) {
	const kills = maxEvents + 500
	s := netTrap(t, kills)
	s.HoldEvents()
	s.Step()

	if st := s.Stats(); st.Totals.HouseKills != kills {
		t.Fatalf("house kills = %d, want %d", st.Totals.HouseKills, kills)
	}
	got := s.EventsAfter(0)
	if len(got) != kills || got[0].Seq != 1 {
		t.Fatalf("held %d events, want all %d from seq 1", len(got), kills)
	}

	// Acknowledging part of the backlog only releases that part.
	s.AckEvents(200)
	if kept := s.EventsAfter(0); len(kept) != kills-200 || kept[0].Seq != 201 {
		t.Fatalf("after ack 200 kept %d events, want %d from seq 201", len(kept), kills-200)
	}
	s.AckEvents(got[len(got)-1].Seq)
	if kept := s.EventsAfter(0); len(kept) != maxEvents {
		t.Errorf("after full ack kept %d events, want %d", len(kept), maxEvents)
	}
	// A stale acknowledgement never moves the mark back.
	s.AckEvents(5)
	if s.ackedSeq != kills {
		t.Errorf("acked seq = %d, want %d", s.ackedSeq, kills)
	}
}

func TestCellsDescribeOccupants(t *testing.T) {
	s := newTestSim(t, emptyConfig(), 1)
	s.add(agents.NewHouse(s.spawner.NewID(), true, false), world.Coord{X: 0, Y: 0})
	s.add(s.spawner.Mosquito(agents.Larva, agents.Exposed), world.Coord{X: 3, Y: 4})

	cells := s.Cells()
	if len(cells) != 2 {
		t.Fatalf("%d cells, want 2", len(cells))
	}
	house := cells[0].Occupants[0]
	if house.Kind != "house" || !house.Net || house.Spray {
		t.Errorf("house view = %+v", house)
	}
	larva := cells[1]
	if larva.X != 3 || larva.Y != 4 {
		t.Errorf("larva at (%d,%d)", larva.X, larva.Y)
	}
	if o := larva.Occupants[0]; o.Stage != "larva" || o.SEIR != "exposed" {
		t.Errorf("larva view = %+v", o)
	}
}
