package agents

// HumanParams are the per-population constants of the human SEIR machine.
type HumanParams struct {
	RecoveryProbability    float64 // × days infected
	SusceptibleProbability float64 // × days recovered
	MortalityEnabled       bool
	MortalityProbability   float64
}

// Human is a host that moves one cell per tick and cycles through SEIR.
type Human struct {
	id     AgentID
	params *HumanParams

	SEIR             SEIR `json:"seir"`
	TimeExposed      int  `json:"time_exposed"`
	TimeInfected     int  `json:"time_infected"`
	TimeRecovered    int  `json:"time_recovered"`
	IncubationPeriod int  `json:"incubation_period"`

	prevDay uint64
}

// NewHuman creates a human in the given state. day is the current day so
// the first activation does not count as a day boundary.
func NewHuman(id AgentID, params *HumanParams, seir SEIR, incubation int, day uint64) *Human {
	return &Human{
		id:               id,
		params:           params,
		SEIR:             seir,
		IncubationPeriod: incubation,
		prevDay:          day,
	}
}

func (h *Human) ID() AgentID { return h.id }
func (h *Human) Kind() Kind  { return KindHuman }

// Step runs one tick: SEIR progression, then a random move if still alive.
func (h *Human) Step(env Env) {
	newDay := h.prevDay != env.CurrentDay()
	if h.checkSEIR(env, newDay) {
		return
	}
	g := env.Grid()
	g.Move(h, randomNeighbor(env, g.Pos(h)))
	h.prevDay = env.CurrentDay()
}

// checkSEIR advances the disease state and reports whether the human died.
func (h *Human) checkSEIR(env Env, newDay bool) (dead bool) {
	if !newDay {
		return false
	}
	rng := env.Rand()

	switch h.SEIR {
	case Exposed:
		h.TimeExposed++
		if h.TimeExposed >= h.IncubationPeriod {
			h.TimeExposed = 0
			h.setSEIR(env, Infected)
		}

	case Infected:
		h.TimeInfected++
		if rng.Float64() < h.params.RecoveryProbability*float64(h.TimeInfected) {
			h.TimeInfected = 0
			h.TimeRecovered = 0
			h.setSEIR(env, Recovered)
			return false
		}
		if h.params.MortalityEnabled && rng.Float64() < h.params.MortalityProbability {
			env.Kill(h, CauseMalaria)
			return true
		}

	case Recovered:
		if rng.Float64() < h.params.SusceptibleProbability*float64(h.TimeRecovered) {
			h.TimeRecovered = 0
			h.setSEIR(env, Susceptible)
		} else {
			h.TimeRecovered++
		}
	}
	return false
}

// Expose moves a susceptible human to Exposed. Other states are unaffected.
func (h *Human) Expose(env Env) bool {
	if h.SEIR != Susceptible {
		return false
	}
	h.TimeExposed = 0
	h.setSEIR(env, Exposed)
	return true
}

func (h *Human) setSEIR(env Env, s SEIR) {
	h.SEIR = s
	env.Reclassify(h)
}
