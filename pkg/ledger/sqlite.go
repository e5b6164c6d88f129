package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lisanmuaddib/balance-sweeper/pkg/sweep"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLite persists outcomes to a local SQLite database.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logrus.Logger
}

// NewSQLite opens (or creates) the database at path and creates the schema.
func NewSQLite(path string, logger *logrus.Logger) (*SQLite, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLite{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.WithField("path", path).Info("SQLite ledger opened")
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sweep_records (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			job_index   INTEGER NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			address     TEXT NOT NULL,
			recipient   TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			code        TEXT NOT NULL DEFAULT '',
			reason      TEXT NOT NULL DEFAULT '',
			tx_hash     TEXT NOT NULL DEFAULT '',
			balance_wei TEXT,
			fee_wei     TEXT,
			amount_wei  TEXT,
			fiat_value  TEXT,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sweep_records_address_outcome ON sweep_records(address, outcome)`,
		`CREATE INDEX IF NOT EXISTS idx_sweep_records_run_id ON sweep_records(run_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Record inserts one outcome.
func (s *SQLite) Record(ctx context.Context, record sweep.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fiat *string
	if record.FiatValue != nil {
		v := record.FiatValue.String()
		fiat = &v
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO sweep_records
		(run_id, job_index, name, address, recipient, outcome, code, reason, tx_hash,
		 balance_wei, fee_wei, amount_wei, fiat_value, recorded_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		record.RunID, record.Index, record.Name,
		normalizeAddress(record.Address), normalizeAddress(record.Recipient),
		record.Outcome.String(), record.Code, record.Reason, record.TxHash,
		bigString(record.Balance), bigString(record.Fee), bigString(record.Amount),
		fiat, record.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert sweep record: %w", err)
	}
	return nil
}

// Completed reports whether address has a recorded success.
func (s *SQLite) Completed(ctx context.Context, address string) (bool, error) {
	var done bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sweep_records WHERE address = ? AND outcome = ?)`,
		normalizeAddress(address), sweep.OutcomeSuccess.String(),
	).Scan(&done)
	if err != nil {
		return false, fmt.Errorf("query sweep records: %w", err)
	}
	return done, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
