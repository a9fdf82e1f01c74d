// Simulation ties together the grid, the registry and the agents and
// advances them one tick at a time.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/malaria-world/internal/agents"
	"github.com/talgya/malaria-world/internal/config"
	"github.com/talgya/malaria-world/internal/world"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Simulation holds the complete world state.
type Simulation struct {
	mu sync.RWMutex

	Config config.Config
	Seed   int64

	grid     *agents.Grid
	registry *Registry
	spawner  *agents.Spawner
	rng      *rand.Rand

	tick uint64
	day  uint64

	initialHumans int
	totals        Totals
	events        []Event
	eventSeq      uint64
	holdEvents    bool   // keep events past maxEvents until acknowledged
	ackedSeq      uint64 // highest sequence number a consumer has stored
	history       []Sample

	// Replaced in tests to force house interventions and activation order.
	drawOutcome func(*rand.Rand) agents.Outcome
	shuffle     func(*rand.Rand, []agents.Agent)
}

// Event is a notable occurrence in the world.
type Event struct {
	Seq         uint64 `json:"seq" db:"seq"`
	Tick        uint64 `json:"tick" db:"tick"`
	Day         uint64 `json:"day" db:"day"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category" db:"category"` // "death", "birth", "house", "intervention"
}

// Totals are cumulative counters since the start of the run.
type Totals struct {
	Hatched        uint64 `json:"hatched"`
	MosquitoDeaths uint64 `json:"mosquito_deaths"`
	HouseKills     uint64 `json:"house_kills"`
	Bites          uint64 `json:"bites"`
	Infections     uint64 `json:"infections"` // humans newly exposed
}

// SEIRCounts holds live counts per SEIR state.
type SEIRCounts struct {
	Susceptible int `json:"susceptible"`
	Exposed     int `json:"exposed"`
	Infected    int `json:"infected"`
	Recovered   int `json:"recovered"`
}

// Total sums every state.
func (c SEIRCounts) Total() int {
	return c.Susceptible + c.Exposed + c.Infected + c.Recovered
}

// Stats is a point-in-time view of aggregate state.
type Stats struct {
	Tick            uint64     `json:"tick"`
	Day             uint64     `json:"day"`
	Humans          SEIRCounts `json:"humans"`
	Mosquitoes      SEIRCounts `json:"mosquitoes"`
	AdultMosquitoes int        `json:"adult_mosquitoes"`
	Larvae          int        `json:"larvae"`
	Houses          int        `json:"houses"`
	WaterBodies     int        `json:"water_bodies"`
	HumanDeaths     int        `json:"human_deaths"`
	Totals          Totals     `json:"totals"`
}

// Sample is one row of the daily time series.
type Sample = Stats

// NewSimulation builds and populates a world from cfg using seed.
func NewSimulation(cfg config.Config, seed int64) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		Config:      cfg,
		Seed:        seed,
		grid:        world.NewGrid[agents.Agent](cfg.Grid.Width, cfg.Grid.Height),
		registry:    NewRegistry(),
		rng:         rand.New(rand.NewSource(seed)),
		drawOutcome: agents.UniformOutcome,
		shuffle:     shuffleAgents,
	}
	s.spawner = agents.NewSpawner(cfg, s.rng, stepEnv{s})

	if err := s.populate(); err != nil {
		return nil, fmt.Errorf("populate: %w", err)
	}
	s.history = append(s.history, s.stats())
	return s, nil
}

func (s *Simulation) populate() error {
	cfg := s.Config
	p := cfg.Population
	w, h := cfg.Grid.Width, cfg.Grid.Height

	randomCell := func() world.Coord {
		return world.Coord{X: s.rng.Intn(w), Y: s.rng.Intn(h)}
	}

	for _, a := range s.spawner.SpawnHumans(p.Humans, int(p.InfectedHumans*float64(p.Humans))) {
		s.add(a, randomCell())
	}
	s.initialHumans = p.Humans

	for _, a := range s.spawner.SpawnMosquitoes(p.Mosquitoes, int(p.InfectedMosquitoes*float64(p.Mosquitoes))) {
		s.add(a, randomCell())
	}

	// Houses and water bodies never share a cell with each other.
	blocked := func(c world.Coord) bool {
		return firstFixed(s.grid, c) != nil
	}

	houseCells, err := world.ChooseCells(s.rng, w, h, p.Houses, blocked, nil)
	if err != nil {
		return fmt.Errorf("place houses: %w", err)
	}
	for _, c := range houseCells {
		s.add(s.spawner.House(), c)
	}

	var wetness *world.Field
	if cfg.Placement.ClusteredWater {
		wetness = world.Wetness(w, h, s.Seed, cfg.Placement.NoiseScale)
	}
	waterCells, err := world.ChooseCells(s.rng, w, h, p.WaterBodies, blocked, wetness)
	if err != nil {
		return fmt.Errorf("place water: %w", err)
	}
	for _, c := range waterCells {
		s.add(s.spawner.Water(), c)
	}

	slog.Debug("world populated",
		"grid", s.grid.String(),
		"humans", p.Humans,
		"mosquitoes", p.Mosquitoes,
		"houses", p.Houses,
		"water_bodies", p.WaterBodies,
	)
	return nil
}

func firstFixed(g *agents.Grid, c world.Coord) agents.Agent {
	for _, o := range g.Occupants(c) {
		if k := o.Kind(); k == agents.KindHouse || k == agents.KindWater {
			return o
		}
	}
	return nil
}

func (s *Simulation) add(a agents.Agent, c world.Coord) {
	s.registry.Add(a)
	s.grid.Place(a, c)
}

// Step advances the simulation by one tick: every live agent is activated
// once in a fresh random order, staged larvae are spliced in, and the day
// rolls over every TicksPerDay ticks.
func (s *Simulation) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
}

func (s *Simulation) step() {
	order := s.registry.Snapshot()
	s.shuffle(s.rng, order)

	env := stepEnv{s}
	for _, a := range order {
		if !s.registry.Alive(a.ID()) {
			continue
		}
		a.Step(env)
	}

	if n := s.registry.Flush(s.grid); n > 0 {
		s.totals.Hatched += uint64(n)
		s.emit("birth", "%d eggs laid", n)
	}

	s.tick++
	if s.tick%uint64(s.Config.Clock.TicksPerDay) == 0 {
		s.day++
		s.endOfDay()
	}
}

func shuffleAgents(rng *rand.Rand, order []agents.Agent) {
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
}

// endOfDay samples the time series and trims the event log.
func (s *Simulation) endOfDay() {
	st := s.stats()
	s.history = append(s.history, st)

	s.trimEvents()

	slog.Info("daily report",
		"day", st.Day,
		"time", SimTime(st.Tick, s.Config.Clock.TicksPerDay),
		"humans", humanize.Comma(int64(st.Humans.Total())),
		"humans_infected", st.Humans.Infected,
		"human_deaths", st.HumanDeaths,
		"mosquitoes", humanize.Comma(int64(st.Mosquitoes.Total())),
		"mosquitoes_infected", st.Mosquitoes.Infected,
		"larvae", humanize.Comma(int64(st.Larvae)),
		"hatched", humanize.Comma(int64(st.Totals.Hatched)),
		"house_kills", st.Totals.HouseKills,
	)
}

// trimEvents drops the oldest events beyond maxEvents. While events are
// held only acknowledged ones may go.
func (s *Simulation) trimEvents() {
	excess := len(s.events) - maxEvents
	if excess <= 0 {
		return
	}
	if s.holdEvents {
		acked := sort.Search(len(s.events), func(i int) bool { return s.events[i].Seq > s.ackedSeq })
		excess = min(excess, acked)
	}
	if excess > 0 {
		s.events = append([]Event(nil), s.events[excess:]...)
	}
}

// HoldEvents keeps every event in memory until AckEvents covers it, so a
// consumer reading EventsAfter once a day sees all of them.
func (s *Simulation) HoldEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdEvents = true
}

// AckEvents marks every event up to seq as stored elsewhere and releases
// the ones no longer needed in memory.
func (s *Simulation) AckEvents(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq > s.ackedSeq {
		s.ackedSeq = seq
	}
	s.trimEvents()
}

func (s *Simulation) emit(category, format string, args ...any) {
	s.eventSeq++
	s.events = append(s.events, Event{
		Seq:         s.eventSeq,
		Tick:        s.tick,
		Day:         s.day,
		Description: fmt.Sprintf(format, args...),
		Category:    category,
	})
}

// CurrentTick returns the number of completed ticks.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// CurrentDay returns the number of completed days.
func (s *Simulation) CurrentDay() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.day
}

// HumanCounts returns live humans per SEIR state.
func (s *Simulation) HumanCounts() SEIRCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seirCounts(agents.KindHuman)
}

// MosquitoCounts returns live mosquitoes, larvae included, per SEIR state.
func (s *Simulation) MosquitoCounts() SEIRCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seirCounts(agents.KindMosquito)
}

// AdultMosquitoes returns the number of live adult mosquitoes.
func (s *Simulation) AdultMosquitoes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stageCount(agents.Adult)
}

// LarvalMosquitoes returns the number of live larvae. Larvae staged this
// tick are not counted until the tick ends.
func (s *Simulation) LarvalMosquitoes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stageCount(agents.Larva)
}

// HumanDeaths returns the initial human count minus the live human count.
func (s *Simulation) HumanDeaths() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialHumans - s.registry.CountKind(agents.KindHuman)
}

// Stats returns a snapshot of every aggregate.
func (s *Simulation) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats()
}

// History returns the daily samples, starting with the initial state.
func (s *Simulation) History() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Sample(nil), s.history...)
}

// Events returns the most recent events, newest last.
func (s *Simulation) Events(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	return append([]Event(nil), s.events[start:]...)
}

// EventsAfter returns the retained events with a sequence number above seq.
func (s *Simulation) EventsAfter(seq uint64) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].Seq > seq })
	return append([]Event(nil), s.events[i:]...)
}

func (s *Simulation) stats() Stats {
	return Stats{
		Tick:            s.tick,
		Day:             s.day,
		Humans:          s.seirCounts(agents.KindHuman),
		Mosquitoes:      s.seirCounts(agents.KindMosquito),
		AdultMosquitoes: s.stageCount(agents.Adult),
		Larvae:          s.stageCount(agents.Larva),
		Houses:          s.registry.CountKind(agents.KindHouse),
		WaterBodies:     s.registry.CountKind(agents.KindWater),
		HumanDeaths:     s.initialHumans - s.registry.CountKind(agents.KindHuman),
		Totals:          s.totals,
	}
}

func (s *Simulation) seirCounts(k agents.Kind) SEIRCounts {
	count := func(seir agents.SEIR) int {
		if k == agents.KindHuman {
			return s.registry.Count(Category{Kind: k, SEIR: seir})
		}
		return s.registry.Count(Category{Kind: k, SEIR: seir, Stage: agents.Larva}) +
			s.registry.Count(Category{Kind: k, SEIR: seir, Stage: agents.Adult})
	}
	return SEIRCounts{
		Susceptible: count(agents.Susceptible),
		Exposed:     count(agents.Exposed),
		Infected:    count(agents.Infected),
		Recovered:   count(agents.Recovered),
	}
}

func (s *Simulation) stageCount(stage agents.LifeStage) int {
	n := 0
	for seir := agents.SEIR(0); seir < agents.NumSEIR; seir++ {
		n += s.registry.Count(Category{Kind: agents.KindMosquito, SEIR: seir, Stage: stage})
	}
	return n
}

// stepEnv is the agents' view of the simulation during Step. It reads
// state directly because Step already holds the lock.
type stepEnv struct {
	s *Simulation
}

func (e stepEnv) CurrentTick() uint64         { return e.s.tick }
func (e stepEnv) CurrentDay() uint64          { return e.s.day }
func (e stepEnv) Rand() *rand.Rand            { return e.s.rng }
func (e stepEnv) Grid() *agents.Grid          { return e.s.grid }
func (e stepEnv) Spawner() *agents.Spawner    { return e.s.spawner }
func (e stepEnv) DrawOutcome() agents.Outcome { return e.s.drawOutcome(e.s.rng) }

func (e stepEnv) Kill(a agents.Agent, cause string) {
	s := e.s
	s.grid.Remove(a)
	s.registry.Remove(a)

	if a.Kind() == agents.KindMosquito {
		s.totals.MosquitoDeaths++
		if cause != agents.CauseOldAge {
			s.totals.HouseKills++
			s.emit("house", "mosquito %s killed by %s", short(a.ID()), cause)
		}
	} else {
		s.emit("death", "%s %s died of %s", a.Kind(), short(a.ID()), cause)
	}
	slog.Debug("agent died", "kind", a.Kind().String(), "id", a.ID().String(), "cause", cause, "tick", s.tick)
}

func (e stepEnv) Hatch(m *agents.Mosquito, c world.Coord) {
	e.s.registry.Stage(m, c)
}

func (e stepEnv) Reclassify(a agents.Agent) {
	e.s.registry.Reclassify(a)
	if h, ok := a.(*agents.Human); ok && h.SEIR == agents.Exposed {
		e.s.totals.Infections++
	}
}

func (e stepEnv) Bitten(*agents.Mosquito, *agents.Human) {
	e.s.totals.Bites++
}

// CellView describes one occupied cell for renderers.
type CellView struct {
	X         int            `json:"x"`
	Y         int            `json:"y"`
	Occupants []OccupantView `json:"occupants"`
}

// OccupantView describes one agent for renderers.
type OccupantView struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	SEIR  string `json:"seir,omitempty"`
	Stage string `json:"stage,omitempty"`
	Net   bool   `json:"net,omitempty"`
	Spray bool   `json:"spray,omitempty"`
}

// Cells returns every occupied cell in row-major order.
func (s *Simulation) Cells() []CellView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []CellView
	s.grid.Each(func(c world.Coord, occ []agents.Agent) {
		cv := CellView{X: c.X, Y: c.Y, Occupants: make([]OccupantView, 0, len(occ))}
		for _, a := range occ {
			v := OccupantView{ID: a.ID().String(), Kind: a.Kind().String()}
			switch a := a.(type) {
			case *agents.Human:
				v.SEIR = a.SEIR.String()
			case *agents.Mosquito:
				v.SEIR = a.SEIR.String()
				v.Stage = a.Stage.String()
			case *agents.House:
				v.Net, v.Spray = a.Net, a.Spray
			}
			cv.Occupants = append(cv.Occupants, v)
		}
		out = append(out, cv)
	})
	return out
}

func short(id agents.AgentID) string {
	return id.String()[:8]
}
