package benefit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// sqliteBusyPoll bounds a single wait inside the driver's busy handler, which
// does not observe context deadlines. Longer waits are retried by SQLiteStore.
const (
	sqliteBusyPoll    = 25 * time.Millisecond
	sqliteBusyBackoff = 5 * time.Millisecond
)

// OpenSQLite opens a SQLite database file for SQLiteStore.
//
// Every transaction begins IMMEDIATE, so a writer holds the database write lock
// from its first statement.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL",
		path, sqliteBusyPoll.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}

// SQLiteStore keeps accounts in a SQLite benefits table. Balances are stored
// as decimal text.
//
// Writers wait for the database write lock until the caller's context
// deadline, or for the busy wait when the context has none.
type SQLiteStore struct {
	db       *sql.DB
	busyWait time.Duration
}

type SQLiteOption func(*SQLiteStore)

// WithBusyWait sets how long a call without a deadline waits for the write lock.
func WithBusyWait(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyWait = d
		}
	}
}

func NewSQLiteStore(db *sql.DB, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{db: db, busyWait: DefaultLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// whileBusy runs op again while it fails with SQLITE_BUSY and the wait budget
// is not spent.
func (s *SQLiteStore) whileBusy(ctx context.Context, op func() error) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.busyWait)
	}
	for {
		err := op()
		if !isSQLiteBusy(err) || !time.Now().Before(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(sqliteBusyBackoff):
		}
	}
}

func isSQLiteBusy(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked)
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (Account, error) {
	return sqliteGet(ctx, s.db, id)
}

func (s *SQLiteStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM benefits WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, classifySQLiteError(id, fmt.Errorf("failed to check account existence: %w", err))
	}
	return exists, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter AccountFilter) ([]Account, error) {
	query := "SELECT id, name, description, balance, active, version FROM benefits"
	if filter.ActiveOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY id"
	args := []any{}
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySQLiteError(0, fmt.Errorf("failed to query accounts: %w", err))
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		account, err := scanSQLiteAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

func (s *SQLiteStore) Create(ctx context.Context, account Account) (Account, error) {
	var res sql.Result
	err := s.whileBusy(ctx, func() (err error) {
		res, err = s.db.ExecContext(ctx,
			"INSERT INTO benefits (name, description, balance, active, version) VALUES (?, ?, ?, ?, 1)",
			account.Name, account.Description, FormatAmount(account.Balance), account.Active)
		return err
	})
	if err != nil {
		return Account{}, classifySQLiteError(0, fmt.Errorf("failed to insert account: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Account{}, fmt.Errorf("failed to read account id: %w", err)
	}
	account.ID = id
	account.Version = 1
	return account, nil
}

func (s *SQLiteStore) Update(ctx context.Context, account Account) (Account, error) {
	var saved Account
	err := s.whileBusy(ctx, func() (err error) {
		saved, err = sqliteSave(ctx, s.db, account)
		return err
	})
	if errors.Is(err, ErrVersionConflict) {
		if exists, existsErr := s.Exists(ctx, account.ID); existsErr == nil && !exists {
			return Account{}, &NotFoundError{ID: account.ID}
		}
	}
	return saved, err
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	var res sql.Result
	err := s.whileBusy(ctx, func() (err error) {
		res, err = s.db.ExecContext(ctx, "DELETE FROM benefits WHERE id = ?", id)
		return err
	})
	if err != nil {
		return classifySQLiteError(id, fmt.Errorf("failed to delete account: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var tx *sql.Tx
	err := s.whileBusy(ctx, func() (err error) {
		tx, err = s.db.BeginTx(ctx, nil)
		return err
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &LockTimeoutError{Err: err}
		}
		return classifySQLiteError(0, fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return multierr.Append(err, fmt.Errorf("failed to rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifySQLiteError(0, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// sqliteTx relies on the IMMEDIATE write lock taken at BEGIN, which already
// excludes every other writer, so GetExclusive is a plain read.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetExclusive(ctx context.Context, id int64) (Account, error) {
	return sqliteGet(ctx, t.tx, id)
}

func (t *sqliteTx) Save(ctx context.Context, account Account) (Account, error) {
	return sqliteSave(ctx, t.tx, account)
}

func sqliteGet(ctx context.Context, q sqlQuerier, id int64) (Account, error) {
	row := q.QueryRowContext(ctx, "SELECT id, name, description, balance, active, version FROM benefits WHERE id = ?", id)
	account, err := scanSQLiteAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, &NotFoundError{ID: id}
	}
	if err != nil {
		return Account{}, classifySQLiteError(id, err)
	}
	return account, nil
}

func sqliteSave(ctx context.Context, q sqlQuerier, account Account) (Account, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE benefits
		SET name = ?, description = ?, balance = ?, active = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, account.Name, account.Description, FormatAmount(account.Balance), account.Active, account.ID, account.Version)
	if err != nil {
		return Account{}, classifySQLiteError(account.ID, fmt.Errorf("failed to save account: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Account{}, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return Account{}, &VersionConflictError{ID: account.ID, Expected: account.Version}
	}
	account.Version++
	return account, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAccount(row rowScanner) (Account, error) {
	var (
		account Account
		balance string
	)
	if err := row.Scan(&account.ID, &account.Name, &account.Description, &balance, &account.Active, &account.Version); err != nil {
		return Account{}, err
	}
	d, err := decimal.NewFromString(balance)
	if err != nil {
		return Account{}, fmt.Errorf("failed to parse balance %q: %w", balance, err)
	}
	account.Balance = d
	return account, nil
}

func classifySQLiteError(id int64, err error) error {
	if err == nil {
		return nil
	}
	if isSQLiteBusy(err) {
		return &LockTimeoutError{ID: id, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LockTimeoutError{ID: id, Err: err}
	}
	return err
}
