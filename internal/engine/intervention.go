package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/malaria-world/internal/agents"
	"github.com/talgya/malaria-world/internal/world"
)

// ImportCases moves up to n susceptible humans straight to Infected, as if
// they had returned from an endemic area. It returns the event description,
// which names how many humans were infected. It fails when n is not
// positive or no human is susceptible.
func (s *Simulation) ImportCases(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("case count must be positive, got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	env := stepEnv{s}
	done := 0
	for _, a := range s.registry.Snapshot() {
		if done == n {
			break
		}
		h, ok := a.(*agents.Human)
		if !ok || h.SEIR != agents.Susceptible {
			continue
		}
		h.SEIR = agents.Infected
		h.TimeInfected = 0
		env.Reclassify(h)
		done++
	}
	if done == 0 {
		return "", fmt.Errorf("no susceptible humans")
	}

	desc := fmt.Sprintf("%d imported malaria cases", done)
	s.emit("intervention", "%s", desc)
	slog.Info("import cases intervention", "requested", n, "infected", done, "tick", s.tick)
	return desc, nil
}

// ReleaseMosquitoes adds n adult mosquitoes at random cells. They join the
// population immediately since no tick is in progress.
func (s *Simulation) ReleaseMosquitoes(n int, infected bool) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("mosquito count must be positive, got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seir := agents.Susceptible
	if infected {
		seir = agents.Infected
	}
	for i := 0; i < n; i++ {
		c := world.Coord{X: s.rng.Intn(s.grid.Width), Y: s.rng.Intn(s.grid.Height)}
		s.add(s.spawner.Mosquito(agents.Adult, seir), c)
	}

	desc := fmt.Sprintf("%d %s adult mosquitoes released", n, seir)
	s.emit("intervention", "%s", desc)
	slog.Info("release intervention", "count", n, "seir", seir.String(), "tick", s.tick)
	return desc, nil
}
