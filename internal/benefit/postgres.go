package benefit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const accountColumns = "id, name, description, balance::text, active, version"

// PostgresStore keeps accounts in the benefits table.
//
// Transactions run at READ COMMITTED; exclusivity comes from SELECT ... FOR
// UPDATE row locks and lost updates are caught by the version predicate.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (ps *PostgresStore) Get(ctx context.Context, id int64) (Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := ps.Pool.QueryRow(queryCtx, "SELECT "+accountColumns+" FROM benefits WHERE id = $1", id)
	account, err := scanAccount(row)
	if err != nil {
		return Account{}, classifyPgError(id, err)
	}
	return account, nil
}

func (ps *PostgresStore) Exists(ctx context.Context, id int64) (bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	err := ps.Pool.QueryRow(queryCtx, "SELECT EXISTS(SELECT 1 FROM benefits WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return exists, nil
}

func (ps *PostgresStore) List(ctx context.Context, filter AccountFilter) ([]Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := "SELECT " + accountColumns + " FROM benefits"
	if filter.ActiveOnly {
		query += " WHERE active"
	}
	query += " ORDER BY id"
	args := []any{}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := ps.Pool.Query(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

func (ps *PostgresStore) Create(ctx context.Context, account Account) (Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := ps.Pool.QueryRow(queryCtx, `
		INSERT INTO benefits (name, description, balance, active, version)
		VALUES ($1, $2, $3::numeric, $4, 1)
		RETURNING id, version
	`, account.Name, account.Description, FormatAmount(account.Balance), account.Active).Scan(&account.ID, &account.Version)
	if err != nil {
		return Account{}, fmt.Errorf("failed to insert account: %w", err)
	}
	return account, nil
}

func (ps *PostgresStore) Update(ctx context.Context, account Account) (Account, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	saved, err := saveAccount(queryCtx, ps.Pool, account)
	if errors.Is(err, ErrVersionConflict) {
		exists, existsErr := ps.Exists(ctx, account.ID)
		if existsErr == nil && !exists {
			return Account{}, &NotFoundError{ID: account.ID}
		}
	}
	return saved, err
}

func (ps *PostgresStore) Delete(ctx context.Context, id int64) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := ps.Pool.Exec(queryCtx, "DELETE FROM benefits WHERE id = $1", id)
	if err != nil {
		return classifyPgError(id, fmt.Errorf("failed to delete account: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

// WithTx runs fn in a READ COMMITTED transaction whose lock waits are bounded
// by the remaining context budget.
func (ps *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := ps.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return classifyPgError(0, fmt.Errorf("failed to begin transaction: %w", err))
	}

	lockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockBudget(ctx).Milliseconds())
	if _, err := tx.Exec(ctx, lockTimeout); err != nil {
		return rollback(ctx, tx, classifyPgError(0, fmt.Errorf("failed to set lock timeout: %w", err)))
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return rollback(ctx, tx, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPgError(0, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	rbErr := tx.Rollback(context.WithoutCancel(ctx))
	if rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
		return multierr.Append(cause, fmt.Errorf("failed to rollback transaction: %w", rbErr))
	}
	return cause
}

func lockBudget(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return DefaultLockTimeout
	}
	remaining := time.Until(deadline)
	if remaining < time.Millisecond {
		return time.Millisecond
	}
	return remaining
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetExclusive(ctx context.Context, id int64) (Account, error) {
	row := t.tx.QueryRow(ctx, "SELECT "+accountColumns+" FROM benefits WHERE id = $1 FOR UPDATE", id)
	account, err := scanAccount(row)
	if err != nil {
		return Account{}, classifyPgError(id, err)
	}
	return account, nil
}

func (t *pgTx) Save(ctx context.Context, account Account) (Account, error) {
	return saveAccount(ctx, t.tx, account)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func saveAccount(ctx context.Context, q queryRower, account Account) (Account, error) {
	var version int64
	err := q.QueryRow(ctx, `
		UPDATE benefits
		SET name = $2, description = $3, balance = $4::numeric, active = $5, version = version + 1
		WHERE id = $1 AND version = $6
		RETURNING version
	`, account.ID, account.Name, account.Description, FormatAmount(account.Balance), account.Active, account.Version).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, &VersionConflictError{ID: account.ID, Expected: account.Version}
	}
	if err != nil {
		return Account{}, classifyPgError(account.ID, fmt.Errorf("failed to save account: %w", err))
	}
	account.Version = version
	return account, nil
}

func scanAccount(row pgx.Row) (Account, error) {
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

// classifyPgError maps driver failures onto the domain taxonomy.
func classifyPgError(id int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{ID: id}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01", "57014": // lock_not_available, deadlock_detected, query_canceled
			return &LockTimeoutError{ID: id, Err: err}
		case "40001": // serialization_failure
			return &VersionConflictError{ID: id}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LockTimeoutError{ID: id, Err: err}
	}
	return err
}
