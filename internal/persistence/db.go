// Package persistence provides the SQLite-backed rolling summary store.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-city/internal/metrics"
	"github.com/talgya/mini-city/internal/scenario"
)

// SchemaVersion is written to meta on open.
const SchemaVersion = 1

// DefaultKeep is the number of summaries retained when Open is given keep <= 0.
const DefaultKeep = 500

// ErrNoSummary is returned by LatestSummary on an empty store.
var ErrNoSummary = errors.New("persistence: no summary stored")

// Summary is one persisted city snapshot.
type Summary struct {
	Cycle                uint64    `db:"cycle" json:"cycle"`
	SimTime              time.Time `db:"-" json:"sim_time"`
	Population           int       `db:"population" json:"population"`
	CitizenSatisfaction  float64   `db:"citizen_satisfaction" json:"citizen_satisfaction"`
	EconomicHealth       float64   `db:"economic_health" json:"economic_health"`
	InfrastructureHealth float64   `db:"infrastructure_health" json:"infrastructure_health"`
	EnvironmentalHealth  float64   `db:"environmental_health" json:"environmental_health"`
	UnemploymentRate     float64   `db:"unemployment_rate" json:"unemployment_rate"`
	CrimeRate            float64   `db:"crime_rate" json:"crime_rate"`
	GovernmentEfficiency float64   `db:"government_efficiency" json:"government_efficiency"`
	ActiveEvents         int       `db:"active_events" json:"active_events"`
	AgentCount           int       `db:"agent_count" json:"agent_count"`
	SavedAt              time.Time `db:"-" json:"saved_at"`

	SimUnix   int64 `db:"sim_time" json:"-"`
	SavedUnix int64 `db:"saved_at" json:"-"`
}

// SummaryFrom builds a summary from a metrics snapshot.
func SummaryFrom(s metrics.Snapshot, savedAt time.Time) Summary {
	return Summary{
		Cycle:                s.Cycle,
		SimTime:              s.SimTime.UTC(),
		Population:           s.Population,
		CitizenSatisfaction:  s.CitizenSatisfaction,
		EconomicHealth:       s.EconomicHealth,
		InfrastructureHealth: s.InfrastructureHealth,
		EnvironmentalHealth:  s.EnvironmentalHealth,
		UnemploymentRate:     s.UnemploymentRate,
		CrimeRate:            s.CrimeRate,
		GovernmentEfficiency: s.GovernmentEfficiency,
		ActiveEvents:         s.ActiveEvents,
		AgentCount:           s.Counts.Total(),
		SavedAt:              savedAt.UTC(),
	}
}

// Store wraps a SQLite connection holding summaries, scenario results and
// metadata.
type Store struct {
	conn *sqlx.DB
	keep int
	log  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for maintenance records.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

// Open opens or creates a SQLite database at the given path. Each SaveSummary
// prunes to the newest keep rows.
func Open(path string, keep int, opts ...Option) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	conn.SetMaxOpenConns(1)

	if keep <= 0 {
		keep = DefaultKeep
	}
	s := &Store{conn: conn, keep: keep, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Keep returns the retention bound.
func (s *Store) Keep() int { return s.keep }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		cycle INTEGER PRIMARY KEY,
		sim_time INTEGER NOT NULL,
		population INTEGER NOT NULL,
		citizen_satisfaction REAL NOT NULL,
		economic_health REAL NOT NULL,
		infrastructure_health REAL NOT NULL,
		environmental_health REAL NOT NULL,
		unemployment_rate REAL NOT NULL,
		crime_rate REAL NOT NULL,
		government_efficiency REAL NOT NULL,
		active_events INTEGER NOT NULL,
		agent_count INTEGER NOT NULL,
		saved_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scenario_results (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		ticks INTEGER NOT NULL,
		start_cycle INTEGER NOT NULL,
		end_cycle INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		saved_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}
	return s.SaveMeta("schema_version", strconv.Itoa(SchemaVersion))
}

// SaveSummary inserts (or replaces) the summary for its cycle and prunes to
// the newest Keep rows in the same transaction.
func (s *Store) SaveSummary(sum Summary) error {
	sum.SimUnix = sum.SimTime.Unix()
	sum.SavedUnix = sum.SavedAt.Unix()

	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT OR REPLACE INTO summaries
		(cycle, sim_time, population, citizen_satisfaction, economic_health,
		 infrastructure_health, environmental_health, unemployment_rate, crime_rate,
		 government_efficiency, active_events, agent_count, saved_at)
		VALUES (:cycle, :sim_time, :population, :citizen_satisfaction, :economic_health,
		 :infrastructure_health, :environmental_health, :unemployment_rate, :crime_rate,
		 :government_efficiency, :active_events, :agent_count, :saved_at)`, sum)
	if err != nil {
		return fmt.Errorf("insert summary %d: %w", sum.Cycle, err)
	}

	res, err := tx.Exec(`DELETE FROM summaries WHERE cycle NOT IN
		(SELECT cycle FROM summaries ORDER BY cycle DESC LIMIT ?)`, s.keep)
	if err != nil {
		return fmt.Errorf("prune summaries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug("summaries pruned", "rows", n, "keep", s.keep)
	}
	return nil
}

func (sum *Summary) restore() {
	sum.SimTime = time.Unix(sum.SimUnix, 0).UTC()
	sum.SavedAt = time.Unix(sum.SavedUnix, 0).UTC()
}

// LatestSummary returns the summary with the highest cycle.
func (s *Store) LatestSummary() (Summary, error) {
	var sum Summary
	err := s.conn.Get(&sum, "SELECT * FROM summaries ORDER BY cycle DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return sum, ErrNoSummary
	}
	if err != nil {
		return sum, err
	}
	sum.restore()
	return sum, nil
}

// Summaries returns up to limit summaries, newest first.
func (s *Store) Summaries(limit int) ([]Summary, error) {
	var out []Summary
	if err := s.conn.Select(&out, "SELECT * FROM summaries ORDER BY cycle DESC LIMIT ?", limit); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].restore()
	}
	return out, nil
}

// SaveScenarioResult appends one scenario run.
func (s *Store) SaveScenarioResult(r scenario.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode scenario result: %w", err)
	}
	_, err = s.conn.Exec(`INSERT OR REPLACE INTO scenario_results
		(id, scenario, ticks, start_cycle, end_cycle, result_json, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Scenario.String(), r.Ticks, r.StartCycle, r.EndCycle,
		string(data), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert scenario result %s: %w", r.ID, err)
	}
	return nil
}

// ScenarioResults returns up to limit scenario runs, newest first.
func (s *Store) ScenarioResults(limit int) ([]scenario.Result, error) {
	var rows []string
	err := s.conn.Select(&rows,
		"SELECT result_json FROM scenario_results ORDER BY rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	out := make([]scenario.Result, 0, len(rows))
	for _, raw := range rows {
		var r scenario.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode scenario result: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// SaveMeta stores a key-value pair in metadata.
func (s *Store) SaveMeta(key, value string) error {
	_, err := s.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
