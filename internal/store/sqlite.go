package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/sitechat/relay/internal/domain"
	"github.com/sitechat/relay/internal/logging"
)

// sqliteTime is the timestamp layout stored in SQLite columns. Fixed-width
// so lexicographic comparison matches chronological order.
const sqliteTime = "2006-01-02 15:04:05.000"

// DB wraps a SQLite database connection with migration support.
type DB struct {
	sql *sql.DB
	log *logging.Logger
}

// Open opens (or creates) a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for tests).
func Open(path string, log *logging.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	db := &DB{sql: sqlDB, log: log.Sub("store")}

	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Info().Str("path", path).Msg("database opened")
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.log.Info().Msg("closing database")
	return db.sql.Close()
}

// Stores returns the SQLite-backed collaborator interfaces.
func (db *DB) Stores() Stores {
	return Stores{
		Tenants:    sqliteTenants{db},
		RateLimits: sqliteRateLimits{db},
		Logs:       sqliteLogs{db},
		Metrics:    sqliteMetrics{db},
	}
}

// migrate runs all pending migrations.
func (db *DB) migrate() error {
	if _, err := db.sql.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := db.isMigrationApplied(m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := db.sql.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (db *DB) isMigrationApplied(version int) (bool, error) {
	var count int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}

// PutTenant inserts or replaces a tenant row. Used by provisioning tooling
// and tests; the relay itself only reads.
func (db *DB) PutTenant(ctx context.Context, t *domain.TenantConfig) error {
	origins, err := json.Marshal(t.AllowedOrigins)
	if err != nil {
		return fmt.Errorf("encoding allowed origins: %w", err)
	}
	siteData, err := json.Marshal(t.SiteData)
	if err != nil {
		return fmt.Errorf("encoding site data: %w", err)
	}
	_, err = db.sql.ExecContext(ctx,
		`INSERT INTO clients (id, active, allowed_origins, site_data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET active=excluded.active,
		   allowed_origins=excluded.allowed_origins, site_data=excluded.site_data`,
		t.ID, t.Active, string(origins), string(siteData),
	)
	return err
}

type sqliteTenants struct{ db *DB }

func (s sqliteTenants) Lookup(ctx context.Context, clientID string) (*domain.TenantConfig, error) {
	var (
		t       domain.TenantConfig
		origins string
		site    string
	)
	err := s.db.sql.QueryRowContext(ctx,
		"SELECT id, active, allowed_origins, site_data FROM clients WHERE id = ?", clientID,
	).Scan(&t.ID, &t.Active, &origins, &site)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up tenant: %w", err)
	}

	if err := json.Unmarshal([]byte(origins), &t.AllowedOrigins); err != nil {
		return nil, fmt.Errorf("decoding allowed origins for %s: %w", clientID, err)
	}
	if err := json.Unmarshal([]byte(site), &t.SiteData); err != nil {
		return nil, fmt.Errorf("decoding site data for %s: %w", clientID, err)
	}
	return &t, nil
}

type sqliteRateLimits struct{ db *DB }

func (s sqliteRateLimits) CountSince(ctx context.Context, clientID, ip string, since time.Time) (int, error) {
	var count int
	err := s.db.sql.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rate_limits WHERE client_id = ? AND ip_address = ? AND created_at >= ?",
		clientID, ip, since.UTC().Format(sqliteTime),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rate limit rows: %w", err)
	}
	return count, nil
}

func (s sqliteRateLimits) Insert(ctx context.Context, clientID, ip string) error {
	_, err := s.db.sql.ExecContext(ctx,
		"INSERT INTO rate_limits (client_id, ip_address, created_at) VALUES (?, ?, ?)",
		clientID, ip, time.Now().UTC().Format(sqliteTime),
	)
	return err
}

type sqliteLogs struct{ db *DB }

func (s sqliteLogs) InsertTurns(ctx context.Context, rows []domain.ConversationRow) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_logs (client_id, session_id, widget_id, role, message, origin)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ClientID, r.SessionID, r.WidgetID, r.Role, r.Message, r.Origin,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting chat log row: %w", err)
		}
	}
	return tx.Commit()
}

type sqliteMetrics struct{ db *DB }

func (s sqliteMetrics) Insert(ctx context.Context, rec domain.MetricsRecord) error {
	var status any
	if rec.VertexStatus != 0 {
		status = rec.VertexStatus
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO chat_metrics
		   (client_id, session_id, widget_id, response_time_ms, vertex_attempts,
		    vertex_status, success, error_type, error_details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ClientID, rec.SessionID, rec.WidgetID, rec.ResponseTimeMs,
		rec.VertexAttempts, status, rec.Success, rec.ErrorType, rec.ErrorDetails,
	)
	return err
}
