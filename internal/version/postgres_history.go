package version

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresConfig contains database configuration for the history log.
type PostgresConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	Table           string        `yaml:"table" mapstructure:"table"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// PostgresHistory stores the history log in a capped table.
type PostgresHistory struct {
	db     *sqlx.DB
	table  string
	logger *zap.Logger
}

type historyRow struct {
	ID           int64          `db:"id"`
	Timestamp    time.Time      `db:"recorded_at"`
	Mode         string         `db:"mode"`
	Replacements int            `db:"replacements"`
	OriginalHash string         `db:"original_hash"`
	NewHash      string         `db:"new_hash"`
	Backup       sql.NullString `db:"backup"`
	State        sql.NullString `db:"state"`
}

// NewPostgresHistory connects to the database and creates the history table
// if needed.
func NewPostgresHistory(config *PostgresConfig, logger *zap.Logger) (*PostgresHistory, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	h, err := newPostgresHistory(db, config.Table, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Postgres history initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.String("table", h.table))

	return h, nil
}

// newPostgresHistory wraps an open connection and ensures the table exists.
func newPostgresHistory(db *sqlx.DB, table string, logger *zap.Logger) (*PostgresHistory, error) {
	if table == "" {
		table = "operation_history"
	}
	h := &PostgresHistory{db: db, table: table, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, h.schema()); err != nil {
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}
	return h, nil
}

func (h *PostgresHistory) schema() string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL,
			mode TEXT NOT NULL,
			replacements INTEGER NOT NULL,
			original_hash TEXT NOT NULL,
			new_hash TEXT NOT NULL,
			backup TEXT,
			state TEXT
		)`, h.table)
}

// Entries returns the log ordered oldest first.
func (h *PostgresHistory) Entries(ctx context.Context) ([]HistoryEntry, error) {
	var rows []historyRow
	query := fmt.Sprintf(`
		SELECT id, recorded_at, mode, replacements, original_hash, new_hash, backup, state
		FROM %s
		ORDER BY id ASC`, h.table)

	if err := h.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}

// Append inserts entry and trims the table to capacity in one transaction.
func (h *PostgresHistory) Append(ctx context.Context, entry HistoryEntry, capacity int) error {
	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(`
		INSERT INTO %s (recorded_at, mode, replacements, original_hash, new_hash, backup, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, h.table)

	if _, err := tx.ExecContext(ctx, insert,
		entry.Timestamp,
		entry.Mode,
		entry.Replacements,
		entry.OriginalHash,
		entry.NewHash,
		nullString(entry.Backup),
		nullString(string(entry.State)),
	); err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	if capacity > 0 {
		trim := fmt.Sprintf(`
			DELETE FROM %[1]s
			WHERE id NOT IN (SELECT id FROM %[1]s ORDER BY id DESC LIMIT $1)`, h.table)
		res, err := tx.ExecContext(ctx, trim, capacity)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
		if evicted, err := res.RowsAffected(); err == nil && evicted > 0 {
			h.logger.Debug("History entries evicted", zap.Int64("evicted", evicted))
		}
	}

	return tx.Commit()
}

// Pop deletes the most recent entry.
func (h *PostgresHistory) Pop(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %[1]s WHERE id = (SELECT MAX(id) FROM %[1]s)`, h.table)
	if _, err := h.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to pop history entry: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (h *PostgresHistory) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

func (r historyRow) entry() HistoryEntry {
	e := HistoryEntry{
		Timestamp:    r.Timestamp,
		Mode:         r.Mode,
		Replacements: r.Replacements,
		OriginalHash: r.OriginalHash,
		NewHash:      r.NewHash,
	}
	if r.Backup.Valid {
		e.Backup = r.Backup.String
	}
	if r.State.Valid && r.State.String != "" {
		e.State = json.RawMessage(r.State.String)
	}
	return e
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// maskDatabaseURL hides the password in a database URL for logging.
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon < 0 || strings.HasPrefix(userPart[colon+1:], "//") {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
