// Interaction rules between co-located agents: biting, oviposition and
// house interventions.
package agents

import "math/rand"

// Outcome is the result of a house intervention on a visiting mosquito.
type Outcome uint8

const (
	OutcomeEnter Outcome = iota
	OutcomeRepel
	OutcomeKill
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRepel:
		return "repel"
	case OutcomeKill:
		return "kill"
	default:
		return "enter"
	}
}

// UniformOutcome draws repel, kill or enter with equal probability.
func UniformOutcome(rng *rand.Rand) Outcome {
	return [3]Outcome{OutcomeRepel, OutcomeKill, OutcomeEnter}[rng.Intn(3)]
}

type houseCheck uint8

const (
	netCheck houseCheck = iota
	sprayCheck
)

// checkHouse applies the net or spray of a co-located house. It returns
// true when the mosquito was killed or repelled and must stop for this tick.
func (m *Mosquito) checkHouse(env Env, check houseCheck) bool {
	g := env.Grid()
	o := firstOfKind(g, g.Pos(m), KindHouse)
	if o == nil {
		return false
	}
	house := o.(*House)

	active := house.Net
	if check == sprayCheck {
		active = house.Spray
	}
	if !active {
		return false
	}

	outcome := env.DrawOutcome()
	if check == netCheck && outcome == OutcomeKill && m.params.NetKillTypoCompat {
		outcome = OutcomeEnter
	}

	switch outcome {
	case OutcomeKill:
		cause := CauseNet
		if check == sprayCheck {
			cause = CauseSpray
		}
		env.Kill(m, cause)
		return true
	case OutcomeRepel:
		m.move(env)
		return true
	}
	return false
}

// biteOrLay looks for water when carrying eggs and for a host otherwise.
// Only the first matching cellmate takes part.
func (m *Mosquito) biteOrLay(env Env) {
	g := env.Grid()
	here := g.Pos(m)

	if m.LookingForWater && m.eggQuotaLeft() {
		if firstOfKind(g, here, KindWater) != nil {
			m.layEggs(env)
			m.LookingForWater = false
		}
		return
	}

	if o := firstOfKind(g, here, KindHuman); o != nil {
		Bite(env, m, o.(*Human))
		if m.eggQuotaLeft() {
			m.LookingForWater = true
		}
	}
}

// layEggs spawns a batch of larvae at the mosquito's cell, bounded by the
// daily and lifetime quotas. It returns the number laid.
func (m *Mosquito) layEggs(env Env) int {
	p := m.params
	rng := env.Rand()

	n := drawDays(rng, p.DailyMinEggs, p.DailyMaxEggs)
	if left := p.DailyMaxEggs - m.EggsToday; n > left {
		n = left
	}
	if left := p.LifetimeMaxEggs - m.EggsLaid; n > left {
		n = left
	}
	if n <= 0 {
		return 0
	}

	here := env.Grid().Pos(m)
	for i := 0; i < n; i++ {
		env.Hatch(env.Spawner().Larva(m), here)
	}
	m.EggsToday += n
	m.EggsLaid += n
	return n
}

// Bite couples a mosquito and a human. At most one direction of
// transmission applies since the state guards are disjoint.
func Bite(env Env, m *Mosquito, h *Human) {
	rng := env.Rand()
	switch {
	case h.SEIR == Infected && m.SEIR == Susceptible:
		if rng.Float64() < m.params.ExposureProbability {
			m.Expose(env)
		}
	case m.SEIR == Infected && h.SEIR == Susceptible:
		if rng.Float64() < m.params.InfectHumanProbability {
			h.Expose(env)
		}
	}
	env.Bitten(m, h)
}
