package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"golang-bank-reconciliation/internal/models"
	"golang-bank-reconciliation/pkg/errors"
	"golang-bank-reconciliation/pkg/logger"
)

const (
	dayLayout  = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

// SQLiteStore is a Repository backed by a SQLite database file.
// Calendar dates are stored as YYYY-MM-DD text, timestamps as RFC 3339 text
// in UTC and decimals as their exact string form.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and runs all
// pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.StorageError("open", err)
	}

	// one connection serialises writers and keeps the pragma in effect
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, errors.StorageError("enable foreign keys", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("storage"),
	}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, errors.StorageError("migrate", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return models.CalendarDay(t).Format(dayLayout)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dayLayout, s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return stderrors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func notFoundOr(err error, entity, id, op string) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFoundError(entity, id)
	}
	return errors.StorageError(op, err)
}

// Ledger

func (s *SQLiteStore) FindTransactions(ctx context.Context, q LedgerQuery) ([]*models.LedgerTransaction, error) {
	from, to := "0000-01-01", "9999-12-31"
	if !q.From.IsZero() {
		from = formatDay(q.From)
	}
	if !q.To.IsZero() {
		to = formatDay(q.To)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, date, description, reference, amount
		FROM ledger_transactions
		WHERE account_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id`, q.AccountID, from, to)
	if err != nil {
		return nil, errors.StorageError("find transactions", err)
	}
	defer rows.Close()

	var out []*models.LedgerTransaction
	for rows.Next() {
		txn, err := scanLedger(rows)
		if err != nil {
			return nil, errors.StorageError("find transactions", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("find transactions", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*models.LedgerTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, date, description, reference, amount
		FROM ledger_transactions WHERE id = ?`, id)
	txn, err := scanLedger(row)
	if err != nil {
		return nil, notFoundOr(err, "ledger transaction", id, "get transaction")
	}
	return txn, nil
}

func scanLedger(r rowScanner) (*models.LedgerTransaction, error) {
	var txn models.LedgerTransaction
	var date string
	if err := r.Scan(&txn.ID, &txn.AccountID, &date, &txn.Description, &txn.Reference, &txn.Amount); err != nil {
		return nil, err
	}
	d, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	txn.Date = d
	return &txn, nil
}

func (s *SQLiteStore) SaveTransactions(ctx context.Context, txns []*models.LedgerTransaction) error {
	return s.withTx(ctx, "save transactions", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO ledger_transactions
			(id, account_id, date, description, reference, amount)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, txn := range txns {
			if _, err := stmt.ExecContext(ctx, txn.ID, txn.AccountID, formatDay(txn.Date),
				txn.Description, txn.Reference, txn.Amount.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

// withTx runs fn in a transaction. ReconcilerErrors returned by fn pass
// through unchanged; anything else becomes a StorageError.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if re, ok := errors.AsReconcilerError(err); ok {
			return re
		}
		return errors.StorageError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.StorageError(op, err)
	}
	return nil
}

// Statements

const statementColumns = `id, account_id, start_date, end_date, opening_balance, closing_balance,
	source_format, file_name, status, imported_at, item_count`

func scanStatement(r rowScanner) (*models.BankStatement, error) {
	var stmt models.BankStatement
	var start, end, imported string
	if err := r.Scan(&stmt.ID, &stmt.AccountID, &start, &end, &stmt.OpeningBalance, &stmt.ClosingBalance,
		&stmt.SourceFormat, &stmt.FileName, &stmt.Status, &imported, &stmt.ItemCount); err != nil {
		return nil, err
	}
	var err error
	if stmt.StartDate, err = parseDay(start); err != nil {
		return nil, err
	}
	if stmt.EndDate, err = parseDay(end); err != nil {
		return nil, err
	}
	if stmt.ImportedAt, err = time.Parse(timeLayout, imported); err != nil {
		return nil, err
	}
	return &stmt, nil
}

func (s *SQLiteStore) CreateStatement(ctx context.Context, stmt *models.BankStatement, items []*models.StatementItem) error {
	return s.withTx(ctx, "create statement", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO bank_statements (`+statementColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			stmt.ID, stmt.AccountID, formatDay(stmt.StartDate), formatDay(stmt.EndDate),
			stmt.OpeningBalance.String(), stmt.ClosingBalance.String(), string(stmt.SourceFormat),
			stmt.FileName, string(stmt.Status), formatTime(stmt.ImportedAt), stmt.ItemCount)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.ValidationError(errors.CodeDuplicate, "statement", stmt.ID, err)
			}
			return err
		}

		ins, err := tx.PrepareContext(ctx, `INSERT INTO statement_items (`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer ins.Close()

		for _, item := range items {
			if _, err := ins.ExecContext(ctx, itemArgs(item)...); err != nil {
				if isUniqueViolation(err) {
					return errors.ValidationError(errors.CodeDuplicate, "statement item", item.ID, err)
				}
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetStatement(ctx context.Context, id string) (*models.BankStatement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statementColumns+` FROM bank_statements WHERE id = ?`, id)
	stmt, err := scanStatement(row)
	if err != nil {
		return nil, notFoundOr(err, "statement", id, "get statement")
	}
	return stmt, nil
}

func (s *SQLiteStore) ListStatements(ctx context.Context, accountID string) ([]*models.BankStatement, error) {
	query := `SELECT ` + statementColumns + ` FROM bank_statements`
	var args []interface{}
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY imported_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("list statements", err)
	}
	defer rows.Close()

	var out []*models.BankStatement
	for rows.Next() {
		stmt, err := scanStatement(rows)
		if err != nil {
			return nil, errors.StorageError("list statements", err)
		}
		out = append(out, stmt)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("list statements", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateStatement(ctx context.Context, stmt *models.BankStatement) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bank_statements SET start_date = ?, end_date = ?, opening_balance = ?, closing_balance = ?,
			file_name = ?, status = ?, item_count = ?
		WHERE id = ?`,
		formatDay(stmt.StartDate), formatDay(stmt.EndDate), stmt.OpeningBalance.String(),
		stmt.ClosingBalance.String(), stmt.FileName, string(stmt.Status), stmt.ItemCount, stmt.ID)
	return checkAffected(res, err, "statement", stmt.ID, "update statement")
}

func (s *SQLiteStore) DeleteStatement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bank_statements WHERE id = ?`, id)
	return checkAffected(res, err, "statement", id, "delete statement")
}

func checkAffected(res sql.Result, err error, entity, id, op string) error {
	if err != nil {
		return errors.StorageError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.StorageError(op, err)
	}
	if n == 0 {
		return errors.NotFoundError(entity, id)
	}
	return nil
}

// Items

const itemColumns = `id, statement_id, sequence, date, description, reference, amount, type,
	running_balance, status, confidence, matched_transaction_id, exclude_reason`

func itemArgs(item *models.StatementItem) []interface{} {
	var matched sql.NullString
	if item.MatchedTransactionID != "" {
		matched = sql.NullString{String: item.MatchedTransactionID, Valid: true}
	}
	return []interface{}{
		item.ID, item.StatementID, item.Sequence, formatDay(item.Date), item.Description, item.Reference,
		item.Amount.String(), string(item.Type), item.RunningBalance.String(), string(item.Status),
		item.Confidence, matched, item.ExcludeReason,
	}
}

func scanItem(r rowScanner) (*models.StatementItem, error) {
	var item models.StatementItem
	var date string
	var matched sql.NullString
	if err := r.Scan(&item.ID, &item.StatementID, &item.Sequence, &date, &item.Description, &item.Reference,
		&item.Amount, &item.Type, &item.RunningBalance, &item.Status, &item.Confidence, &matched,
		&item.ExcludeReason); err != nil {
		return nil, err
	}
	d, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	item.Date = d
	item.MatchedTransactionID = matched.String
	return &item, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*models.StatementItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM statement_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		return nil, notFoundOr(err, "statement item", id, "get item")
	}
	return item, nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, statementID string) ([]*models.StatementItem, error) {
	if _, err := s.GetStatement(ctx, statementID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM statement_items WHERE statement_id = ? ORDER BY sequence`, statementID)
	if err != nil {
		return nil, errors.StorageError("list items", err)
	}
	defer rows.Close()

	var out []*models.StatementItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.StorageError("list items", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("list items", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateItem(ctx context.Context, item *models.StatementItem) error {
	var matched sql.NullString
	if item.MatchedTransactionID != "" {
		matched = sql.NullString{String: item.MatchedTransactionID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE statement_items SET status = ?, confidence = ?, matched_transaction_id = ?, exclude_reason = ?
		WHERE id = ?`, string(item.Status), item.Confidence, matched, item.ExcludeReason, item.ID)
	if err != nil && isUniqueViolation(err) {
		return errors.ConcurrencyError(item.MatchedTransactionID, "")
	}
	return checkAffected(res, err, "statement item", item.ID, "update item")
}

// Matches

func (s *SQLiteStore) CommitMatch(ctx context.Context, item *models.StatementItem, result *models.MatchResult) error {
	return s.withTx(ctx, "commit match", func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM statement_items WHERE id = ?`, item.ID).Scan(&status)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NotFoundError("statement item", item.ID)
		}
		if err != nil {
			return err
		}
		if models.MatchStatus(status) != models.StatusUnmatched {
			return errors.InvalidStateError("statement item", item.ID, status, string(models.StatusUnmatched))
		}

		var owner string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM statement_items
			WHERE matched_transaction_id = ? AND status IN ('AUTO_MATCHED', 'MANUAL_MATCHED')`,
			result.TransactionID).Scan(&owner)
		if err == nil {
			return errors.ConcurrencyError(result.TransactionID, owner)
		}
		if !stderrors.Is(err, sql.ErrNoRows) {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE statement_items SET status = ?, confidence = ?, matched_transaction_id = ?, exclude_reason = ''
			WHERE id = ?`, string(item.Status), item.Confidence, item.MatchedTransactionID, item.ID); err != nil {
			if isUniqueViolation(err) {
				return errors.ConcurrencyError(result.TransactionID, "")
			}
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO match_results (id, item_id, statement_id, transaction_id, score, method, exact, matched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			result.ID, result.ItemID, result.StatementID, result.TransactionID, result.Score,
			string(result.Method), result.Exact, formatTime(result.MatchedAt))
		return err
	})
}

func (s *SQLiteStore) ClaimedTransactionIDs(ctx context.Context, accountID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.matched_transaction_id, i.id
		FROM statement_items i JOIN bank_statements b ON b.id = i.statement_id
		WHERE b.account_id = ? AND i.status IN ('AUTO_MATCHED', 'MANUAL_MATCHED')`, accountID)
	if err != nil {
		return nil, errors.StorageError("claimed transactions", err)
	}
	defer rows.Close()

	claimed := make(map[string]string)
	for rows.Next() {
		var txnID, itemID string
		if err := rows.Scan(&txnID, &itemID); err != nil {
			return nil, errors.StorageError("claimed transactions", err)
		}
		claimed[txnID] = itemID
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("claimed transactions", err)
	}
	return claimed, nil
}

func (s *SQLiteStore) ListMatchResults(ctx context.Context, statementID string) ([]*models.MatchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, statement_id, transaction_id, score, method, exact, matched_at
		FROM match_results WHERE statement_id = ? ORDER BY rowid`, statementID)
	if err != nil {
		return nil, errors.StorageError("list match results", err)
	}
	defer rows.Close()

	var out []*models.MatchResult
	for rows.Next() {
		var r models.MatchResult
		var matchedAt string
		if err := rows.Scan(&r.ID, &r.ItemID, &r.StatementID, &r.TransactionID, &r.Score,
			&r.Method, &r.Exact, &matchedAt); err != nil {
			return nil, errors.StorageError("list match results", err)
		}
		if r.MatchedAt, err = time.Parse(timeLayout, matchedAt); err != nil {
			return nil, errors.StorageError("list match results", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("list match results", err)
	}
	return out, nil
}

// Reconciliations

const reconciliationColumns = `id, account_id, statement_id, status, book_balance, bank_balance,
	statement_end_date, notes, started_at, completed_at`

func scanReconciliation(r rowScanner) (*models.BankReconciliation, error) {
	var rec models.BankReconciliation
	var endDate, started string
	var completed sql.NullString
	if err := r.Scan(&rec.ID, &rec.AccountID, &rec.StatementID, &rec.Status, &rec.BookBalance, &rec.BankBalance,
		&endDate, &rec.Notes, &started, &completed); err != nil {
		return nil, err
	}
	var err error
	if rec.StatementEndDate, err = parseDay(endDate); err != nil {
		return nil, err
	}
	if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, err
	}
	if rec.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) CreateReconciliation(ctx context.Context, rec *models.BankReconciliation) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO reconciliations (`+reconciliationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AccountID, rec.StatementID, string(rec.Status), rec.BookBalance.String(),
		rec.BankBalance.String(), formatDay(rec.StatementEndDate), rec.Notes, formatTime(rec.StartedAt),
		nullTime(rec.CompletedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ValidationError(errors.CodeDuplicate, "reconciliation", rec.ID, err)
		}
		return errors.StorageError("create reconciliation", err)
	}
	return nil
}

func (s *SQLiteStore) GetReconciliation(ctx context.Context, id string) (*models.BankReconciliation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reconciliationColumns+` FROM reconciliations WHERE id = ?`, id)
	rec, err := scanReconciliation(row)
	if err != nil {
		return nil, notFoundOr(err, "reconciliation", id, "get reconciliation")
	}
	return rec, nil
}

func (s *SQLiteStore) UpdateReconciliation(ctx context.Context, rec *models.BankReconciliation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reconciliations SET status = ?, book_balance = ?, bank_balance = ?, statement_end_date = ?,
			notes = ?, completed_at = ?
		WHERE id = ?`,
		string(rec.Status), rec.BookBalance.String(), rec.BankBalance.String(), formatDay(rec.StatementEndDate),
		rec.Notes, nullTime(rec.CompletedAt), rec.ID)
	return checkAffected(res, err, "reconciliation", rec.ID, "update reconciliation")
}

func (s *SQLiteStore) DeleteReconciliation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reconciliations WHERE id = ?`, id)
	return checkAffected(res, err, "reconciliation", id, "delete reconciliation")
}

func (s *SQLiteStore) FindActiveReconciliation(ctx context.Context, statementID string) (*models.BankReconciliation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reconciliationColumns+` FROM reconciliations
		WHERE statement_id = ? AND status = ? LIMIT 1`, statementID, string(models.ReconciliationInProgress))
	rec, err := scanReconciliation(row)
	if err != nil {
		return nil, notFoundOr(err, "active reconciliation for statement", statementID, "find reconciliation")
	}
	return rec, nil
}

func (s *SQLiteStore) ListReconciliations(ctx context.Context, accountID string) ([]*models.BankReconciliation, error) {
	query := `SELECT ` + reconciliationColumns + ` FROM reconciliations`
	var args []interface{}
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY started_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("list reconciliations", err)
	}
	defer rows.Close()

	var out []*models.BankReconciliation
	for rows.Next() {
		rec, err := scanReconciliation(rows)
		if err != nil {
			return nil, errors.StorageError("list reconciliations", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("list reconciliations", err)
	}
	return out, nil
}

// Outstanding items

const outstandingColumns = `id, account_id, transaction_id, reference, description, amount,
	transaction_date, cleared, cleared_date, created_at`

func scanOutstanding(r rowScanner) (*models.OutstandingItem, error) {
	var item models.OutstandingItem
	var txnDate, created string
	var cleared sql.NullString
	if err := r.Scan(&item.ID, &item.AccountID, &item.TransactionID, &item.Reference, &item.Description,
		&item.Amount, &txnDate, &item.Cleared, &cleared, &created); err != nil {
		return nil, err
	}
	var err error
	if item.TransactionDate, err = parseDay(txnDate); err != nil {
		return nil, err
	}
	if item.ClearedDate, err = parseNullTime(cleared); err != nil {
		return nil, err
	}
	if item.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *SQLiteStore) SaveOutstanding(ctx context.Context, item *models.OutstandingItem) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO outstanding_items (`+outstandingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.AccountID, item.TransactionID, item.Reference, item.Description, item.Amount.String(),
		formatDay(item.TransactionDate), item.Cleared, nullTime(item.ClearedDate), formatTime(item.CreatedAt))
	if err != nil {
		return errors.StorageError("save outstanding", err)
	}
	return nil
}

func (s *SQLiteStore) GetOutstanding(ctx context.Context, id string) (*models.OutstandingItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outstandingColumns+` FROM outstanding_items WHERE id = ?`, id)
	item, err := scanOutstanding(row)
	if err != nil {
		return nil, notFoundOr(err, "outstanding item", id, "get outstanding")
	}
	return item, nil
}

func (s *SQLiteStore) FindOutstandingByTransaction(ctx context.Context, transactionID string) (*models.OutstandingItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+outstandingColumns+` FROM outstanding_items WHERE transaction_id = ?`, transactionID)
	item, err := scanOutstanding(row)
	if err != nil {
		return nil, notFoundOr(err, "outstanding item for transaction", transactionID, "find outstanding")
	}
	return item, nil
}

func (s *SQLiteStore) ListOutstanding(ctx context.Context, accountID string, openOnly bool) ([]*models.OutstandingItem, error) {
	query := `SELECT ` + outstandingColumns + ` FROM outstanding_items WHERE account_id = ?`
	if openOnly {
		query += ` AND cleared = 0`
	}
	query += ` ORDER BY transaction_date, id`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, errors.StorageError("list outstanding", err)
	}
	defer rows.Close()

	var out []*models.OutstandingItem
	for rows.Next() {
		item, err := scanOutstanding(rows)
		if err != nil {
			return nil, errors.StorageError("list outstanding", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("list outstanding", err)
	}
	return out, nil
}

// Audit

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *models.ReconciliationAudit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_audit
		(id, reconciliation_id, statement_id, action, description, previous_value, new_value, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ReconciliationID, entry.StatementID, entry.Action, entry.Description,
		entry.PreviousValue, entry.NewValue, formatTime(entry.Timestamp))
	if err != nil {
		return errors.StorageError("append audit", err)
	}
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, filter AuditFilter) ([]*models.ReconciliationAudit, error) {
	query := `SELECT id, reconciliation_id, statement_id, action, description, previous_value, new_value, timestamp
		FROM reconciliation_audit WHERE 1 = 1`
	var args []interface{}
	if filter.StatementID != "" {
		query += ` AND statement_id = ?`
		args = append(args, filter.StatementID)
	}
	if filter.ReconciliationID != "" {
		query += ` AND reconciliation_id = ?`
		args = append(args, filter.ReconciliationID)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("list audit", err)
	}
	defer rows.Close()

	var out []*models.ReconciliationAudit
	for rows.Next() {
		var e models.ReconciliationAudit
		var ts string
		if err := rows.Scan(&e.ID, &e.ReconciliationID, &e.StatementID, &e.Action, &e.Description,
			&e.PreviousValue, &e.NewValue, &ts); err != nil {
			return nil, errors.StorageError("list audit", err)
		}
		if e.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, errors.StorageError("list audit", fmt.Errorf("timestamp %q: %w", ts, err))
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("list audit", err)
	}
	return out, nil
}
