// Package config holds the construction-time parameters of a malaria run,
// loaded from YAML over built-in defaults and validated before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Range is an inclusive integer interval of days.
type Range struct {
	Lo int `yaml:"lo" json:"lo"`
	Hi int `yaml:"hi" json:"hi"`
}

// Fixed returns a range containing only n.
func Fixed(n int) Range {
	return Range{Lo: n, Hi: n}
}

// GridConfig sizes the toroidal world.
type GridConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// PopulationConfig controls the initial population.
type PopulationConfig struct {
	Humans             int     `yaml:"humans" json:"humans"`
	Mosquitoes         int     `yaml:"mosquitoes" json:"mosquitoes"`
	Houses             int     `yaml:"houses" json:"houses"`
	WaterBodies        int     `yaml:"water_bodies" json:"water_bodies"`
	InfectedHumans     float64 `yaml:"infected_humans" json:"infected_humans"`         // fraction in [0,1]
	InfectedMosquitoes float64 `yaml:"infected_mosquitoes" json:"infected_mosquitoes"` // fraction in [0,1]
}

// HumanConfig parameterizes the human SEIR machine.
type HumanConfig struct {
	IncubationPeriod Range `yaml:"incubation_period" json:"incubation_period"`

	// Per-day multipliers: the daily probability is multiplier × days in state.
	RecoveryProbability    float64 `yaml:"recovery_probability" json:"recovery_probability"`
	SusceptibleProbability float64 `yaml:"susceptible_probability" json:"susceptible_probability"`

	// When enabled, a failed daily recovery draw is followed by a death draw.
	MortalityEnabled     bool    `yaml:"mortality_enabled" json:"mortality_enabled"`
	MortalityProbability float64 `yaml:"mortality_probability" json:"mortality_probability"`
}

// MosquitoConfig parameterizes the mosquito life cycle and vector state.
type MosquitoConfig struct {
	LarvalDuration   Range `yaml:"larval_duration" json:"larval_duration"`
	AdultLifespan    Range `yaml:"adult_lifespan" json:"adult_lifespan"`
	IncubationPeriod Range `yaml:"incubation_period" json:"incubation_period"`

	DailyMinEggs    int `yaml:"daily_min_eggs" json:"daily_min_eggs"`
	DailyMaxEggs    int `yaml:"daily_max_eggs" json:"daily_max_eggs"`
	LifetimeMaxEggs int `yaml:"lifetime_max_eggs" json:"lifetime_max_eggs"`

	ExposureProbability    float64 `yaml:"exposure_probability" json:"exposure_probability"`
	InfectHumanProbability float64 `yaml:"infect_human_probability" json:"infect_human_probability"`

	DailySteps int `yaml:"daily_steps" json:"daily_steps"`
}

// HouseConfig controls intervention coverage.
type HouseConfig struct {
	NetCoverage   float64 `yaml:"net_coverage" json:"net_coverage"`
	SprayCoverage float64 `yaml:"spray_coverage" json:"spray_coverage"`

	// NetKillTypoCompat downgrades a "kill" draw at the net check to "enter",
	// reproducing the older model where that branch was unreachable.
	NetKillTypoCompat bool `yaml:"net_kill_typo_compat" json:"net_kill_typo_compat"`
}

// PlacementConfig controls where fixed features are put.
type PlacementConfig struct {
	ClusteredWater bool    `yaml:"clustered_water" json:"clustered_water"`
	NoiseScale     float64 `yaml:"noise_scale" json:"noise_scale"`
}

// ClockConfig relates ticks to days.
type ClockConfig struct {
	TicksPerDay int `yaml:"ticks_per_day" json:"ticks_per_day"`
}

// Config is the full set of construction-time options.
type Config struct {
	Seed       int64            `yaml:"seed" json:"seed"` // 0 = draw one at startup
	Grid       GridConfig       `yaml:"grid" json:"grid"`
	Population PopulationConfig `yaml:"population" json:"population"`
	Human      HumanConfig      `yaml:"human" json:"human"`
	Mosquito   MosquitoConfig   `yaml:"mosquito" json:"mosquito"`
	Houses     HouseConfig      `yaml:"houses" json:"houses"`
	Placement  PlacementConfig  `yaml:"placement" json:"placement"`
	Clock      ClockConfig      `yaml:"clock" json:"clock"`
}

// Default returns the parameters the model was calibrated with.
func Default() Config {
	return Config{
		Grid: GridConfig{Width: 10, Height: 10},
		Population: PopulationConfig{
			Humans:             3,
			Mosquitoes:         6,
			Houses:             2,
			WaterBodies:        2,
			InfectedHumans:     0.4,
			InfectedMosquitoes: 0.2,
		},
		Human: HumanConfig{
			IncubationPeriod:       Range{Lo: 7, Hi: 30},
			RecoveryProbability:    0.037,
			SusceptibleProbability: 0.01,
			MortalityProbability:   1.0,
		},
		Mosquito: MosquitoConfig{
			LarvalDuration:         Range{Lo: 9, Hi: 14},
			AdultLifespan:          Range{Lo: 7, Hi: 30},
			IncubationPeriod:       Range{Lo: 10, Hi: 21},
			DailyMinEggs:           0,
			DailyMaxEggs:           50,
			LifetimeMaxEggs:        100,
			ExposureProbability:    0.02,
			InfectHumanProbability: 0.5,
			DailySteps:             24,
		},
		Houses: HouseConfig{
			NetCoverage:   0.5,
			SprayCoverage: 0.5,
		},
		Placement: PlacementConfig{NoiseScale: 0.15},
		Clock:     ClockConfig{TicksPerDay: 24},
	}
}

// Load reads a YAML file and overlays it on Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode overlays YAML bytes onto cfg.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Grid.Width <= 0 || c.Grid.Height <= 0 {
		add("grid must be at least 1x1, got %dx%d", c.Grid.Width, c.Grid.Height)
	}

	p := c.Population
	for _, f := range []struct {
		name string
		n    int
	}{
		{"population.humans", p.Humans},
		{"population.mosquitoes", p.Mosquitoes},
		{"population.houses", p.Houses},
		{"population.water_bodies", p.WaterBodies},
	} {
		if f.n < 0 {
			add("%s must be non-negative, got %d", f.name, f.n)
		}
	}
	if c.Grid.Width > 0 && c.Grid.Height > 0 && p.Houses+p.WaterBodies > c.Grid.Width*c.Grid.Height {
		add("%d houses and water bodies do not fit on %d cells", p.Houses+p.WaterBodies, c.Grid.Width*c.Grid.Height)
	}

	type prob struct {
		name string
		v    float64
	}
	for _, f := range []prob{
		{"population.infected_humans", p.InfectedHumans},
		{"population.infected_mosquitoes", p.InfectedMosquitoes},
		{"human.mortality_probability", c.Human.MortalityProbability},
		{"mosquito.exposure_probability", c.Mosquito.ExposureProbability},
		{"mosquito.infect_human_probability", c.Mosquito.InfectHumanProbability},
		{"houses.net_coverage", c.Houses.NetCoverage},
		{"houses.spray_coverage", c.Houses.SprayCoverage},
	} {
		if f.v < 0 || f.v > 1 {
			add("%s must be in [0,1], got %g", f.name, f.v)
		}
	}
	for _, f := range []prob{
		{"human.recovery_probability", c.Human.RecoveryProbability},
		{"human.susceptible_probability", c.Human.SusceptibleProbability},
	} {
		if f.v < 0 {
			add("%s must be non-negative, got %g", f.name, f.v)
		}
	}

	for _, f := range []struct {
		name string
		r    Range
	}{
		{"human.incubation_period", c.Human.IncubationPeriod},
		{"mosquito.larval_duration", c.Mosquito.LarvalDuration},
		{"mosquito.adult_lifespan", c.Mosquito.AdultLifespan},
		{"mosquito.incubation_period", c.Mosquito.IncubationPeriod},
	} {
		if f.r.Lo < 0 {
			add("%s lower bound must be non-negative, got %d", f.name, f.r.Lo)
		}
		if f.r.Hi < f.r.Lo {
			add("%s has hi %d < lo %d", f.name, f.r.Hi, f.r.Lo)
		}
	}

	m := c.Mosquito
	if m.DailyMinEggs < 0 || m.DailyMaxEggs < 0 || m.LifetimeMaxEggs < 0 {
		add("mosquito egg counts must be non-negative")
	}
	if m.DailyMinEggs > m.DailyMaxEggs {
		add("mosquito.daily_min_eggs %d > daily_max_eggs %d", m.DailyMinEggs, m.DailyMaxEggs)
	}
	if m.DailySteps < 0 {
		add("mosquito.daily_steps must be non-negative, got %d", m.DailySteps)
	}

	if c.Clock.TicksPerDay < 1 {
		add("clock.ticks_per_day must be at least 1, got %d", c.Clock.TicksPerDay)
	}
	if c.Placement.NoiseScale < 0 {
		add("placement.noise_scale must be non-negative, got %g", c.Placement.NoiseScale)
	}

	return errors.Join(errs...)
}
