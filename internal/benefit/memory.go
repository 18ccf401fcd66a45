package benefit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps accounts in process memory.
//
// Each account has its own lock, held by a transaction from GetExclusive until
// commit or rollback, and briefly by Update and Delete. Lock waits honour the
// context deadline. Saves are staged and applied together at commit.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[int64]Account
	locks    map[int64]chan struct{}
	nextID   int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int64]Account),
		locks:    make(map[int64]chan struct{}),
	}
}

func (s *MemoryStore) lockChan(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

func (s *MemoryStore) acquire(ctx context.Context, id int64) error {
	ch := s.lockChan(id)
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &LockTimeoutError{ID: id, Err: ctx.Err()}
		}
		return fmt.Errorf("waiting for lock on account %d: %w", id, ctx.Err())
	}
}

func (s *MemoryStore) release(id int64) {
	<-s.lockChan(id)
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, &NotFoundError{ID: id}
	}
	return a, nil
}

func (s *MemoryStore) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok, nil
}

func (s *MemoryStore) List(_ context.Context, filter AccountFilter) ([]Account, error) {
	s.mu.RLock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if filter.ActiveOnly && !a.Active {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Account{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	account.ID = s.nextID
	account.Version = 1
	s.accounts[account.ID] = account
	return account, nil
}

func (s *MemoryStore) Update(ctx context.Context, account Account) (Account, error) {
	if err := s.acquire(ctx, account.ID); err != nil {
		return Account{}, err
	}
	defer s.release(account.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.accounts[account.ID]
	if !ok {
		return Account{}, &NotFoundError{ID: account.ID}
	}
	if current.Version != account.Version {
		return Account{}, &VersionConflictError{ID: account.ID, Expected: account.Version}
	}
	account.Version++
	s.accounts[account.ID] = account
	return account, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	if err := s.acquire(ctx, id); err != nil {
		return err
	}
	defer s.release(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(s.accounts, id)
	return nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memoryTx{
		store:  s,
		held:   make(map[int64]struct{}),
		staged: make(map[int64]Account),
	}
	defer tx.releaseAll()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &LockTimeoutError{Err: err}
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return tx.commit()
}

type memoryTx struct {
	store  *MemoryStore
	held   map[int64]struct{}
	staged map[int64]Account
}

func (tx *memoryTx) GetExclusive(ctx context.Context, id int64) (Account, error) {
	if _, ok := tx.held[id]; !ok {
		if err := tx.store.acquire(ctx, id); err != nil {
			return Account{}, err
		}
		tx.held[id] = struct{}{}
	}
	if a, ok := tx.staged[id]; ok {
		return a, nil
	}
	return tx.store.Get(ctx, id)
}

func (tx *memoryTx) Save(_ context.Context, account Account) (Account, error) {
	if _, ok := tx.held[account.ID]; !ok {
		return Account{}, fmt.Errorf("account %d saved without being locked", account.ID)
	}
	current, ok := tx.staged[account.ID]
	if !ok {
		var err error
		current, err = tx.store.Get(context.Background(), account.ID)
		if err != nil {
			return Account{}, err
		}
	}
	if current.Version != account.Version {
		return Account{}, &VersionConflictError{ID: account.ID, Expected: account.Version}
	}
	account.Version++
	tx.staged[account.ID] = account
	return account, nil
}

func (tx *memoryTx) commit() error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, staged := range tx.staged {
		current, ok := s.accounts[id]
		if !ok {
			return &NotFoundError{ID: id}
		}
		if current.Version != staged.Version-1 {
			return &VersionConflictError{ID: id, Expected: staged.Version - 1}
		}
	}
	for id, staged := range tx.staged {
		s.accounts[id] = staged
	}
	return nil
}

func (tx *memoryTx) releaseAll() {
	for id := range tx.held {
		tx.store.release(id)
	}
	tx.held = nil
}
