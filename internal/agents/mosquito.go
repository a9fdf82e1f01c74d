package agents

// MosquitoParams are the per-population constants of the mosquito machine.
type MosquitoParams struct {
	DailyMinEggs    int
	DailyMaxEggs    int
	LifetimeMaxEggs int

	ExposureProbability    float64 // human → mosquito, per bite
	InfectHumanProbability float64 // mosquito → human, per bite

	DailySteps int

	NetKillTypoCompat bool
}

// Mosquito is a vector. Larvae sit still until they mature; adults spend a
// daily movement budget alternating between biting and laying eggs.
type Mosquito struct {
	id     AgentID
	params *MosquitoParams

	Stage            LifeStage `json:"stage"`
	SEIR             SEIR      `json:"seir"`
	Age              int       `json:"age"` // days
	LarvalDuration   int       `json:"larval_duration"`
	Lifespan         int       `json:"lifespan"`
	IncubationPeriod int       `json:"incubation_period"`
	TimeExposed      int       `json:"time_exposed"`

	RemainingSteps  int  `json:"remaining_steps"`
	EggsToday       int  `json:"eggs_today"`
	EggsLaid        int  `json:"eggs_laid"`
	LookingForWater bool `json:"looking_for_water"`

	prevDay uint64
}

// MosquitoTraits are the individual draws made once at creation.
type MosquitoTraits struct {
	LarvalDuration   int
	AdultLifespan    int
	IncubationPeriod int
}

// NewMosquito creates a mosquito. Adults start with their larval days
// already behind them.
func NewMosquito(id AgentID, params *MosquitoParams, stage LifeStage, seir SEIR, tr MosquitoTraits, day uint64) *Mosquito {
	m := &Mosquito{
		id:               id,
		params:           params,
		Stage:            stage,
		SEIR:             seir,
		LarvalDuration:   tr.LarvalDuration,
		Lifespan:         tr.LarvalDuration + tr.AdultLifespan,
		IncubationPeriod: tr.IncubationPeriod,
		RemainingSteps:   params.DailySteps,
		prevDay:          day,
	}
	if stage == Adult {
		m.Age = tr.LarvalDuration
	}
	return m
}

func (m *Mosquito) ID() AgentID { return m.id }
func (m *Mosquito) Kind() Kind  { return KindMosquito }

// Step runs one tick of the mosquito machine.
func (m *Mosquito) Step(env Env) {
	newDay := m.prevDay != env.CurrentDay()
	m.prevDay = env.CurrentDay()
	if newDay {
		m.Age++
		m.RemainingSteps = m.params.DailySteps
		m.EggsToday = 0
	}

	if !m.checkLifeStage(env) {
		return
	}
	m.checkSEIR(env, newDay)
	m.move(env)

	if m.checkHouse(env, netCheck) {
		return
	}
	m.biteOrLay(env)
	m.checkHouse(env, sprayCheck)
}

// checkLifeStage matures or ages out the mosquito. It returns true only
// when an adult may go on acting this tick.
func (m *Mosquito) checkLifeStage(env Env) bool {
	switch m.Stage {
	case Larva:
		if m.Age >= m.LarvalDuration {
			m.Stage = Adult
			env.Reclassify(m)
		}
		return false
	default:
		if m.Age >= m.Lifespan {
			env.Kill(m, CauseOldAge)
			return false
		}
		return true
	}
}

// IsAdult reports whether the larval period is over.
func (m *Mosquito) IsAdult() bool {
	return m.Stage == Adult
}

func (m *Mosquito) checkSEIR(env Env, newDay bool) {
	if m.SEIR != Exposed || !newDay {
		return
	}
	m.TimeExposed++
	if m.TimeExposed >= m.IncubationPeriod {
		m.TimeExposed = 0
		m.setSEIR(env, Infected)
	}
}

// move spends one step of the daily budget on a random neighbor.
func (m *Mosquito) move(env Env) bool {
	if m.Stage != Adult || m.RemainingSteps <= 0 {
		return false
	}
	g := env.Grid()
	g.Move(m, randomNeighbor(env, g.Pos(m)))
	m.RemainingSteps--
	return true
}

// Expose moves a susceptible mosquito to Exposed.
func (m *Mosquito) Expose(env Env) bool {
	if m.SEIR != Susceptible {
		return false
	}
	m.TimeExposed = 0
	m.setSEIR(env, Exposed)
	return true
}

func (m *Mosquito) eggQuotaLeft() bool {
	return m.EggsLaid < m.params.LifetimeMaxEggs
}

func (m *Mosquito) setSEIR(env Env, s SEIR) {
	m.SEIR = s
	env.Reclassify(m)
}
