package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the append-only analysis history backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "diarisk.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// AppendAnalysis stores rec in a single transaction and returns its id.
// A zero CreatedAt is set to the current time.
func (s *Store) AppendAnalysis(rec AnalysisRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	a := rec.Analysis

	labs, err := marshal(a.Labs)
	if err != nil {
		return 0, err
	}
	insights, err := marshalOptional(a.LabInsights)
	if err != nil {
		return 0, err
	}
	retinal, err := marshalOptional(a.Retinal)
	if err != nil {
		return 0, err
	}
	cognitive, err := marshalOptional(a.Cognitive)
	if err != nil {
		return 0, err
	}
	trace, err := marshal(a.AgentTrace)
	if err != nil {
		return 0, err
	}
	risks, err := marshal(a.RiskScores)
	if err != nil {
		return 0, err
	}
	recs, err := marshal(a.Recommendations)
	if err != nil {
		return 0, err
	}
	warnings, err := marshal(a.Warnings)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	res, err := tx.Exec(`
		INSERT INTO analyses (request_id, created_at, lab_filename, labs_json, lab_insights_json, retinal_json, cognitive_json, agent_trace_json, risks_json, recommendations_json, warnings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RequestID, rec.CreatedAt.UTC().Format(time.RFC3339), rec.LabFilename,
		labs, insights, retinal, cognitive, trace, risks, recs, warnings,
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("inserting analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing analysis: %w", err)
	}
	return id, nil
}

const analysisColumns = `id, request_id, created_at, lab_filename, labs_json, lab_insights_json, retinal_json, cognitive_json, agent_trace_json, risks_json, recommendations_json, warnings_json`

// GetAnalysis returns the record with the given id.
func (s *Store) GetAnalysis(id int64) (AnalysisRecord, error) {
	row := s.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	rec, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return AnalysisRecord{}, ErrNotFound
	}
	return rec, err
}

// RecentAnalyses returns up to limit records, newest first.
func (s *Store) RecentAnalyses(limit int) ([]AnalysisRecord, error) {
	if limit <= 0 {
		return []AnalysisRecord{}, nil
	}
	rows, err := s.db.Query(`SELECT `+analysisColumns+` FROM analyses ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []AnalysisRecord{}
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// CountAnalyses returns the number of stored records.
func (s *Store) CountAnalyses() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM analyses`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(sc scanner) (AnalysisRecord, error) {
	var (
		rec                             AnalysisRecord
		createdAt                       string
		labs, trace, risks, recs, warns string
		insights, retinal, cognitive    sql.NullString
	)
	err := sc.Scan(&rec.ID, &rec.Analysis.RequestID, &createdAt, &rec.LabFilename,
		&labs, &insights, &retinal, &cognitive, &trace, &risks, &recs, &warns)
	if err != nil {
		return AnalysisRecord{}, err
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.CreatedAt = t

	a := &rec.Analysis
	for _, col := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"labs_json", labs, &a.Labs},
		{"agent_trace_json", trace, &a.AgentTrace},
		{"risks_json", risks, &a.RiskScores},
		{"recommendations_json", recs, &a.Recommendations},
		{"warnings_json", warns, &a.Warnings},
		{"lab_insights_json", insights.String, &a.LabInsights},
		{"retinal_json", retinal.String, &a.Retinal},
		{"cognitive_json", cognitive.String, &a.Cognitive},
	} {
		if col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return AnalysisRecord{}, fmt.Errorf("decoding %s of analysis %d: %w", col.name, rec.ID, err)
		}
	}
	return rec, nil
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding analysis: %w", err)
	}
	return string(b), nil
}

// marshalOptional stores a nil pointer as NULL.
func marshalOptional[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	s, err := marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}
