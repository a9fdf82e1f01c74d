// Package persistence provides SQLite-based storage for the daily time
// series, the event log and run metadata.
package persistence

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/malaria-world/internal/config"
	"github.com/talgya/malaria-world/internal/engine"
)

// DB wraps a SQLite connection for run output.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path. ":memory:"
// gives a private in-memory database.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite has a single writer, and an in-memory database exists per connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stats (
		day INTEGER PRIMARY KEY,
		tick INTEGER NOT NULL,
		humans_susceptible INTEGER NOT NULL,
		humans_exposed INTEGER NOT NULL,
		humans_infected INTEGER NOT NULL,
		humans_recovered INTEGER NOT NULL,
		mosquitoes_susceptible INTEGER NOT NULL,
		mosquitoes_exposed INTEGER NOT NULL,
		mosquitoes_infected INTEGER NOT NULL,
		adult_mosquitoes INTEGER NOT NULL,
		larvae INTEGER NOT NULL,
		houses INTEGER NOT NULL,
		water_bodies INTEGER NOT NULL,
		human_deaths INTEGER NOT NULL,
		hatched INTEGER NOT NULL,
		mosquito_deaths INTEGER NOT NULL,
		house_kills INTEGER NOT NULL,
		bites INTEGER NOT NULL,
		infections INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		day INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// statsRow is the flat column layout of one engine.Sample.
type statsRow struct {
	Day                   uint64 `db:"day"`
	Tick                  uint64 `db:"tick"`
	HumansSusceptible     int    `db:"humans_susceptible"`
	HumansExposed         int    `db:"humans_exposed"`
	HumansInfected        int    `db:"humans_infected"`
	HumansRecovered       int    `db:"humans_recovered"`
	MosquitoesSusceptible int    `db:"mosquitoes_susceptible"`
	MosquitoesExposed     int    `db:"mosquitoes_exposed"`
	MosquitoesInfected    int    `db:"mosquitoes_infected"`
	AdultMosquitoes       int    `db:"adult_mosquitoes"`
	Larvae                int    `db:"larvae"`
	Houses                int    `db:"houses"`
	WaterBodies           int    `db:"water_bodies"`
	HumanDeaths           int    `db:"human_deaths"`
	Hatched               uint64 `db:"hatched"`
	MosquitoDeaths        uint64 `db:"mosquito_deaths"`
	HouseKills            uint64 `db:"house_kills"`
	Bites                 uint64 `db:"bites"`
	Infections            uint64 `db:"infections"`
}

func toRow(s engine.Sample) statsRow {
	return statsRow{
		Day:                   s.Day,
		Tick:                  s.Tick,
		HumansSusceptible:     s.Humans.Susceptible,
		HumansExposed:         s.Humans.Exposed,
		HumansInfected:        s.Humans.Infected,
		HumansRecovered:       s.Humans.Recovered,
		MosquitoesSusceptible: s.Mosquitoes.Susceptible,
		MosquitoesExposed:     s.Mosquitoes.Exposed,
		MosquitoesInfected:    s.Mosquitoes.Infected,
		AdultMosquitoes:       s.AdultMosquitoes,
		Larvae:                s.Larvae,
		Houses:                s.Houses,
		WaterBodies:           s.WaterBodies,
		HumanDeaths:           s.HumanDeaths,
		Hatched:               s.Totals.Hatched,
		MosquitoDeaths:        s.Totals.MosquitoDeaths,
		HouseKills:            s.Totals.HouseKills,
		Bites:                 s.Totals.Bites,
		Infections:            s.Totals.Infections,
	}
}

func (r statsRow) sample() engine.Sample {
	return engine.Sample{
		Day:  r.Day,
		Tick: r.Tick,
		Humans: engine.SEIRCounts{
			Susceptible: r.HumansSusceptible,
			Exposed:     r.HumansExposed,
			Infected:    r.HumansInfected,
			Recovered:   r.HumansRecovered,
		},
		Mosquitoes: engine.SEIRCounts{
			Susceptible: r.MosquitoesSusceptible,
			Exposed:     r.MosquitoesExposed,
			Infected:    r.MosquitoesInfected,
		},
		AdultMosquitoes: r.AdultMosquitoes,
		Larvae:          r.Larvae,
		Houses:          r.Houses,
		WaterBodies:     r.WaterBodies,
		HumanDeaths:     r.HumanDeaths,
		Totals: engine.Totals{
			Hatched:        r.Hatched,
			MosquitoDeaths: r.MosquitoDeaths,
			HouseKills:     r.HouseKills,
			Bites:          r.Bites,
			Infections:     r.Infections,
		},
	}
}

// SaveSample writes one day of the time series, replacing any row for the same day.
func (db *DB) SaveSample(s engine.Sample) error {
	_, err := db.conn.NamedExec(`INSERT OR REPLACE INTO stats
		(day, tick, humans_susceptible, humans_exposed, humans_infected, humans_recovered,
		 mosquitoes_susceptible, mosquitoes_exposed, mosquitoes_infected,
		 adult_mosquitoes, larvae, houses, water_bodies, human_deaths,
		 hatched, mosquito_deaths, house_kills, bites, infections)
		VALUES (:day, :tick, :humans_susceptible, :humans_exposed, :humans_infected, :humans_recovered,
		 :mosquitoes_susceptible, :mosquitoes_exposed, :mosquitoes_infected,
		 :adult_mosquitoes, :larvae, :houses, :water_bodies, :human_deaths,
		 :hatched, :mosquito_deaths, :house_kills, :bites, :infections)`,
		toRow(s),
	)
	if err != nil {
		return fmt.Errorf("insert stats day %d: %w", s.Day, err)
	}
	return nil
}

// History returns every stored sample in day order.
func (db *DB) History() ([]engine.Sample, error) {
	return db.HistoryRange(0, math.MaxInt64, -1)
}

// HistoryRange returns the samples with from <= day <= to in day order,
// at most limit of them. A negative limit returns all.
func (db *DB) HistoryRange(from, to uint64, limit int) ([]engine.Sample, error) {
	// The driver rejects uint64 values with the high bit set.
	if to > math.MaxInt64 {
		to = math.MaxInt64
	}
	var rows []statsRow
	err := db.conn.Select(&rows,
		"SELECT * FROM stats WHERE day >= ? AND day <= ? ORDER BY day LIMIT ?",
		from, to, limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Sample, len(rows))
	for i, r := range rows {
		out[i] = r.sample()
	}
	return out, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamed(`INSERT INTO events (seq, tick, day, description, category)
		VALUES (:seq, :tick, :day, :description, :category)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(e); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT seq, tick, day, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// SaveRun records what is needed to repeat a run: the seed and the
// effective configuration as YAML.
func (db *DB) SaveRun(cfg config.Config, seed int64) error {
	raw, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	meta := map[string]string{
		"seed":       strconv.FormatInt(seed, 10),
		"config":     string(raw),
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if err := db.SaveMeta(k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}
	return nil
}

// Recorder appends a simulation's daily sample and any new events.
type Recorder struct {
	db      *DB
	lastSeq uint64
}

// NewRecorder creates a recorder writing to db. Call HoldEvents on the
// simulation first so no event is trimmed before it is written.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// Record saves the current sample and every event not yet written.
func (r *Recorder) Record(sim *engine.Simulation) error {
	st := sim.Stats()
	if err := r.db.SaveSample(st); err != nil {
		return fmt.Errorf("save sample: %w", err)
	}
	n, err := r.FlushEvents(sim)
	if err != nil {
		return err
	}
	slog.Debug("run state recorded", "day", st.Day, "events", n)
	return nil
}

// FlushEvents saves the events not yet written and returns how many there were.
func (r *Recorder) FlushEvents(sim *engine.Simulation) (int, error) {
	events := sim.EventsAfter(r.lastSeq)
	if err := r.db.SaveEvents(events); err != nil {
		return 0, fmt.Errorf("save events: %w", err)
	}
	if n := len(events); n > 0 {
		r.lastSeq = events[n-1].Seq
		sim.AckEvents(r.lastSeq)
	}
	return len(events), nil
}
