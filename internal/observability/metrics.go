// Package observability exposes simulation state as Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/malaria-world/internal/engine"
)

// SimCollector holds the simulation metrics.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Population   *prometheus.GaugeVec // labels: kind, seir
	Stage        *prometheus.GaugeVec // labels: stage
	Day          prometheus.Gauge
	HumanDeaths  prometheus.Gauge
	Events       *prometheus.CounterVec // labels: event
	TickDuration prometheus.Histogram

	mu   sync.Mutex
	last engine.Totals
}

// NewSimCollector registers simulation metrics against the provided registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	population, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "malaria_population",
		Help: "Live agents by kind and SEIR state.",
	}, []string{"kind", "seir"}), "malaria_population")
	if err != nil {
		return nil, err
	}

	stage, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "malaria_mosquito_stage",
		Help: "Live mosquitoes by life stage.",
	}, []string{"stage"}), "malaria_mosquito_stage")
	if err != nil {
		return nil, err
	}

	day, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "malaria_sim_day",
		Help: "Completed simulation days.",
	}), "malaria_sim_day")
	if err != nil {
		return nil, err
	}

	deaths, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "malaria_human_deaths",
		Help: "Initial humans minus live humans.",
	}), "malaria_human_deaths")
	if err != nil {
		return nil, err
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "malaria_events_total",
		Help: "Cumulative simulation events by type.",
	}, []string{"event"}), "malaria_events_total")
	if err != nil {
		return nil, err
	}

	tickDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "malaria_tick_duration_seconds",
		Help:    "Wall-clock time spent in one simulation tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "malaria_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:     gatherer,
		Population:   population,
		Stage:        stage,
		Day:          day,
		HumanDeaths:  deaths,
		Events:       events,
		TickDuration: tickDuration,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick records the duration of one tick.
func (c *SimCollector) ObserveTick(d time.Duration) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// Update sets the gauges from st and advances the counters by the change in
// totals since the previous update.
func (c *SimCollector) Update(st engine.Stats) {
	if c == nil {
		return
	}
	setSEIR(c.Population, "human", st.Humans, true)
	setSEIR(c.Population, "mosquito", st.Mosquitoes, false)
	c.Population.WithLabelValues("house", "").Set(float64(st.Houses))
	c.Population.WithLabelValues("water", "").Set(float64(st.WaterBodies))
	c.Stage.WithLabelValues("adult").Set(float64(st.AdultMosquitoes))
	c.Stage.WithLabelValues("larva").Set(float64(st.Larvae))
	c.Day.Set(float64(st.Day))
	c.HumanDeaths.Set(float64(st.HumanDeaths))

	c.mu.Lock()
	defer c.mu.Unlock()
	t := st.Totals
	c.add("hatched", t.Hatched, c.last.Hatched)
	c.add("mosquito_death", t.MosquitoDeaths, c.last.MosquitoDeaths)
	c.add("house_kill", t.HouseKills, c.last.HouseKills)
	c.add("bite", t.Bites, c.last.Bites)
	c.add("infection", t.Infections, c.last.Infections)
	c.last = t
}

func (c *SimCollector) add(event string, now, before uint64) {
	if now > before {
		c.Events.WithLabelValues(event).Add(float64(now - before))
	}
}

func setSEIR(vec *prometheus.GaugeVec, kind string, n engine.SEIRCounts, recovered bool) {
	vec.WithLabelValues(kind, "susceptible").Set(float64(n.Susceptible))
	vec.WithLabelValues(kind, "exposed").Set(float64(n.Exposed))
	vec.WithLabelValues(kind, "infected").Set(float64(n.Infected))
	if recovered {
		vec.WithLabelValues(kind, "recovered").Set(float64(n.Recovered))
	}
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
