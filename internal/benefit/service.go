package benefit

import (
	"context"
	"fmt"
	"log/slog"
)

// AccountService provides the CRUD operations around benefit accounts.
type AccountService struct {
	repo   Repository
	logger *slog.Logger
}

// NewAccountService creates a new account service
func NewAccountService(repo Repository, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{repo: repo, logger: logger}
}

// List returns accounts ordered by id.
func (s *AccountService) List(ctx context.Context, filter AccountFilter) ([]Account, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, validationErr("limit", "limit and offset must not be negative")
	}
	accounts, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// ListActive returns only the active accounts.
func (s *AccountService) ListActive(ctx context.Context) ([]Account, error) {
	return s.List(ctx, AccountFilter{ActiveOnly: true})
}

func (s *AccountService) Get(ctx context.Context, id int64) (Account, error) {
	if id <= 0 {
		return Account{}, validationErr("id", "account id must be positive")
	}
	return s.repo.Get(ctx, id)
}

// Create stores a new account. Active defaults to true.
func (s *AccountService) Create(ctx context.Context, req CreateAccountRequest) (Account, error) {
	if err := ValidateCreate(req); err != nil {
		return Account{}, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	account, err := s.repo.Create(ctx, Account{
		Name:        req.Name,
		Description: req.Description,
		Balance:     req.Balance,
		Active:      active,
	})
	if err != nil {
		return Account{}, fmt.Errorf("failed to create account: %w", err)
	}
	s.logger.Info("account created", "account_id", account.ID, "balance", account.Balance.String())
	return account, nil
}

// Update replaces the account's mutable fields. req.Version must match the
// stored version; a stale version fails with VersionConflictError.
func (s *AccountService) Update(ctx context.Context, id int64, req UpdateAccountRequest) (Account, error) {
	if err := ValidateUpdate(id, req); err != nil {
		return Account{}, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	active := current.Active
	if req.Active != nil {
		active = *req.Active
	}

	account, err := s.repo.Update(ctx, Account{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Balance:     req.Balance,
		Active:      active,
		Version:     req.Version,
	})
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("account updated", "account_id", account.ID, "version", account.Version)
	return account, nil
}

// Delete removes the account, reporting NotFoundError when it does not exist.
func (s *AccountService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return validationErr("id", "account id must be positive")
	}
	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check account existence: %w", err)
	}
	if !exists {
		return &NotFoundError{ID: id}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("account deleted", "account_id", id)
	return nil
}
