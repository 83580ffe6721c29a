package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

var allMigrations = []Migration{
	{Version: 1, Name: "initial_schema", Up: migration001InitialSchema},
	{Version: 2, Name: "add_match_results", Up: migration002AddMatchResults},
	{Version: 3, Name: "add_reconciliation_tables", Up: migration003AddReconciliationTables},
}

// runMigrations executes all pending migrations, each in its own transaction
func (s *SQLiteStore) runMigrations() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.appliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		s.logger.WithField("version", migration.Version).Debugf("Running migration %s", migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}
		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
			migration.Version, migration.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func (s *SQLiteStore) appliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// SchemaVersion returns the highest applied migration version
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var version sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func execAll(tx *sql.Tx, statements ...string) error {
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migration001InitialSchema(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE ledger_transactions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			date TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			reference TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL
		)`,
		`CREATE INDEX idx_ledger_account_date ON ledger_transactions(account_id, date)`,
		`CREATE TABLE bank_statements (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			start_date TEXT,
			end_date TEXT,
			opening_balance TEXT NOT NULL,
			closing_balance TEXT NOT NULL,
			source_format TEXT NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			imported_at TEXT NOT NULL,
			item_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX idx_statements_account ON bank_statements(account_id)`,
		`CREATE TABLE statement_items (
			id TEXT PRIMARY KEY,
			statement_id TEXT NOT NULL REFERENCES bank_statements(id) ON DELETE CASCADE,
			sequence INTEGER NOT NULL,
			date TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			reference TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			type TEXT NOT NULL,
			running_balance TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence INTEGER NOT NULL DEFAULT 0,
			matched_transaction_id TEXT,
			exclude_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX idx_items_statement ON statement_items(statement_id, sequence)`,
	)
}

func migration002AddMatchResults(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE match_results (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL,
			statement_id TEXT NOT NULL REFERENCES bank_statements(id) ON DELETE CASCADE,
			transaction_id TEXT NOT NULL,
			score INTEGER NOT NULL,
			method TEXT NOT NULL,
			exact INTEGER NOT NULL DEFAULT 0,
			matched_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_match_results_statement ON match_results(statement_id)`,
		// a ledger transaction may back at most one matched item
		`CREATE UNIQUE INDEX idx_items_claim ON statement_items(matched_transaction_id)
			WHERE status IN ('AUTO_MATCHED', 'MANUAL_MATCHED')`,
	)
}

func migration003AddReconciliationTables(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE reconciliations (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			statement_id TEXT NOT NULL,
			status TEXT NOT NULL,
			book_balance TEXT NOT NULL,
			bank_balance TEXT NOT NULL,
			statement_end_date TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			completed_at TEXT
		)`,
		`CREATE INDEX idx_reconciliations_statement ON reconciliations(statement_id, status)`,
		`CREATE TABLE outstanding_items (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL UNIQUE,
			reference TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			transaction_date TEXT NOT NULL,
			cleared INTEGER NOT NULL DEFAULT 0,
			cleared_date TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_outstanding_account ON outstanding_items(account_id, cleared)`,
		`CREATE TABLE reconciliation_audit (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			reconciliation_id TEXT NOT NULL DEFAULT '',
			statement_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			previous_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)`,
	)
}
