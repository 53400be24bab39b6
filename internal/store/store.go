// Package store is the single persistent state container: append-only
// streams plus singleton rows in one embedded SQLite file. All writes are
// transactional; any driver error surfaces as a StorageFailure.
package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/piptrade/botd/internal/apperr"
)

const defaultTimeout = 5 * time.Second

// Store wraps the SQLite handle with a per-operation timeout.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open creates the parent directory, opens (or creates) the database file,
// and applies boot migrations. A file that fails the integrity handshake is
// reported as fatal to the caller; it is never silently truncated.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.StorageFailure, err, "create store directory %s", dir)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL&_foreign_keys=on",
		url.PathEscape(path))
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, err, "open store %s", path)
	}

	s := &Store{db: db, timeout: defaultTimeout}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.StorageFailure, err, "store %s is unreadable", path)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("store opened")
	return s, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ticks (
		id INTEGER PRIMARY KEY,
		time_utc TEXT NOT NULL,
		at_epoch INTEGER NOT NULL,
		market TEXT NOT NULL,
		price REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ticks_market_at ON ticks(market, at_epoch)`,

	`CREATE TABLE IF NOT EXISTS equity (
		id INTEGER PRIMARY KEY,
		time_utc TEXT NOT NULL,
		at_epoch INTEGER NOT NULL,
		equity_usd REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_equity_at ON equity(at_epoch)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY,
		time_utc TEXT NOT NULL,
		at_epoch INTEGER NOT NULL,
		market TEXT NOT NULL,
		side TEXT NOT NULL,
		size_usd REAL NOT NULL,
		price REAL NOT NULL,
		pnl_usd REAL NOT NULL,
		confidence REAL NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_market_at ON trades(market, at_epoch)`,

	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY,
		time_utc TEXT NOT NULL,
		at_epoch INTEGER NOT NULL,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		details_json TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS deaths (
		id INTEGER PRIMARY KEY,
		time_utc TEXT NOT NULL,
		at_epoch INTEGER NOT NULL,
		source TEXT NOT NULL,
		reason TEXT NOT NULL,
		details_json TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS control (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		state TEXT NOT NULL,
		pause_reason TEXT NOT NULL DEFAULT '',
		pause_until_utc TEXT NOT NULL DEFAULT '',
		pause_until_epoch INTEGER NOT NULL DEFAULT 0,
		cryo_reason TEXT NOT NULL DEFAULT '',
		cryo_until_utc TEXT NOT NULL DEFAULT '',
		cryo_until_epoch INTEGER NOT NULL DEFAULT 0,
		updated_at_utc TEXT NOT NULL,
		updated_at_us INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS heartbeat (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		time_utc TEXT NOT NULL,
		at_epoch INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		survival_mode TEXT NOT NULL DEFAULT '',
		equity_usd REAL NOT NULL DEFAULT 0,
		open_positions INTEGER NOT NULL DEFAULT 0,
		prices_ok INTEGER NOT NULL DEFAULT 0,
		markets_json TEXT NOT NULL DEFAULT '[]',
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		total_trades INTEGER NOT NULL DEFAULT 0,
		total_pnl_usd REAL NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_heartbeat_at ON heartbeat(at_epoch)`,

	`CREATE TABLE IF NOT EXISTS pet (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		time_utc TEXT NOT NULL,
		at_epoch INTEGER NOT NULL,
		stage TEXT NOT NULL DEFAULT 'egg',
		mood TEXT NOT NULL DEFAULT 'focused',
		health REAL NOT NULL DEFAULT 100,
		hunger REAL NOT NULL DEFAULT 50,
		growth REAL NOT NULL DEFAULT 0,
		fainted_until_utc TEXT NOT NULL DEFAULT '',
		sex TEXT NOT NULL DEFAULT 'boy',
		survival_mode TEXT NOT NULL DEFAULT 'NORMAL'
	)`,

	`CREATE TABLE IF NOT EXISTS prices (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		time_utc TEXT NOT NULL,
		at_epoch INTEGER NOT NULL,
		prices_json TEXT NOT NULL DEFAULT '{}'
	)`,
}

// Columns added after the initial schema shipped. Older database files get
// them at boot; unknown extra columns in newer files are simply ignored.
var addedColumns = []struct {
	table, column, ddl string
}{
	{"trades", "confidence", "REAL NOT NULL DEFAULT 0"},
	{"trades", "reason", "TEXT NOT NULL DEFAULT ''"},
	{"pet", "sex", "TEXT NOT NULL DEFAULT 'boy'"},
	{"pet", "survival_mode", "TEXT NOT NULL DEFAULT 'NORMAL'"},
	{"heartbeat", "total_pnl_usd", "REAL NOT NULL DEFAULT 0"},
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.StorageFailure, err, "apply schema")
		}
	}
	for _, ac := range addedColumns {
		ok, err := s.hasColumn(ctx, ac.table, ac.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", ac.table, ac.column, ac.ddl)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return apperr.Wrap(apperr.StorageFailure, err, "add column %s.%s", ac.table, ac.column)
		}
		log.Info().Str("table", ac.table).Str("column", ac.column).Msg("store migrated")
	}
	return nil
}

func (s *Store) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, apperr.Wrap(apperr.StorageFailure, err, "inspect table %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  interface{}
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &primaryKey); err != nil {
			return false, apperr.Wrap(apperr.StorageFailure, err, "inspect table %s", table)
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, nil
}
