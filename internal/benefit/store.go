package benefit

import (
	"context"
)

// Repository is the plain, non-locking access path to accounts.
type Repository interface {
	Get(ctx context.Context, id int64) (Account, error)
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, filter AccountFilter) ([]Account, error)
	// Create assigns the id and sets version to 1.
	Create(ctx context.Context, account Account) (Account, error)
	// Update writes account only if the stored version equals account.Version.
	Update(ctx context.Context, account Account) (Account, error)
	Delete(ctx context.Context, id int64) error
}

// Tx is a unit of work against the store.
//
// GetExclusive locks the account until the transaction ends. A second
// GetExclusive on the same id, from any other transaction, blocks until then.
// Save is version-checked and returns the record carrying its new version.
type Tx interface {
	GetExclusive(ctx context.Context, id int64) (Account, error)
	Save(ctx context.Context, account Account) (Account, error)
}

// Transactor runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise; locks are released either way.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is the full contract a backend implements.
type Store interface {
	Repository
	Transactor
}
