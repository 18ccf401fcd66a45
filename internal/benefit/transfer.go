package benefit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultLockTimeout bounds a single transfer transaction, lock waits included.
const DefaultLockTimeout = 5 * time.Second

// TransferMessage acknowledges a committed transfer to API callers.
const TransferMessage = "transfer completed successfully"

// TransferRequest moves Amount from SourceID to DestinationID.
// A null Amount is rejected as missing.
type TransferRequest struct {
	SourceID      int64               `json:"source_id"`
	DestinationID int64               `json:"destination_id"`
	Amount        decimal.NullDecimal `json:"amount"`
}

// TransferResult describes a committed transfer. Source and Destination are
// the records as saved, carrying their new balances and versions.
type TransferResult struct {
	TransferID  string          `json:"transfer_id"`
	Amount      decimal.Decimal `json:"amount"`
	Source      Account         `json:"source"`
	Destination Account         `json:"destination"`
}

// Recorder receives one observation per Transfer call.
type Recorder interface {
	ObserveTransfer(outcome string, amount decimal.Decimal, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransfer(string, decimal.Decimal, time.Duration) {}

// TransferEngine moves balances between two accounts atomically.
type TransferEngine struct {
	store       Transactor
	logger      *slog.Logger
	recorder    Recorder
	lockTimeout time.Duration
}

// Option configures a TransferEngine.
type Option func(*TransferEngine)

func WithLogger(l *slog.Logger) Option {
	return func(e *TransferEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *TransferEngine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLockTimeout sets the per-transfer transaction budget. Non-positive values are ignored.
func WithLockTimeout(d time.Duration) Option {
	return func(e *TransferEngine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// NewTransferEngine creates an engine running its transactions on store.
func NewTransferEngine(store Transactor, opts ...Option) *TransferEngine {
	e := &TransferEngine{
		store:       store,
		logger:      slog.Default(),
		recorder:    nopRecorder{},
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transfer debits the source and credits the destination in one transaction.
//
// Both accounts are locked in ascending id order whatever their roles, so two
// opposite transfers between the same pair cannot deadlock. The engine never
// retries; IsRetryable tells the caller whether resubmitting may succeed.
func (e *TransferEngine) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	start := time.Now()
	result, err := e.transfer(ctx, req)
	elapsed := time.Since(start)

	amount := decimal.Zero
	if req.Amount.Valid {
		amount = req.Amount.Decimal
	}
	e.recorder.ObserveTransfer(Kind(err), amount, elapsed)

	if err != nil {
		level := slog.LevelInfo
		if IsRetryable(err) || Kind(err) == "internal_error" {
			level = slog.LevelWarn
		}
		e.logger.Log(ctx, level, "transfer rejected",
			"source_id", req.SourceID,
			"destination_id", req.DestinationID,
			"amount", amount.String(),
			"kind", Kind(err),
			"retryable", IsRetryable(err),
			"error", err.Error(),
		)
		return TransferResult{}, err
	}

	e.logger.Info("transfer committed",
		"transfer_id", result.TransferID,
		"source_id", result.Source.ID,
		"destination_id", result.Destination.ID,
		"amount", FormatAmount(result.Amount),
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func (e *TransferEngine) transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if err := ValidateTransfer(req); err != nil {
		return TransferResult{}, err
	}
	amount := req.Amount.Decimal

	txCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	var result TransferResult
	err := e.store.WithTx(txCtx, func(ctx context.Context, tx Tx) error {
		source, destination, err := lockPair(ctx, tx, req.SourceID, req.DestinationID)
		if err != nil {
			return err
		}

		if !source.Active {
			return &InactiveAccountError{ID: source.ID, Side: SideSource}
		}
		if !destination.Active {
			return &InactiveAccountError{ID: destination.ID, Side: SideDestination}
		}

		remaining := source.Balance.Sub(amount)
		if remaining.IsNegative() {
			return &InsufficientFundsError{ID: source.ID, Balance: source.Balance, Requested: amount}
		}
		source.Balance = remaining
		destination.Balance = destination.Balance.Add(amount)

		savedSource, err := tx.Save(ctx, source)
		if err != nil {
			return err
		}
		savedDestination, err := tx.Save(ctx, destination)
		if err != nil {
			return err
		}

		result = TransferResult{
			TransferID:  uuid.NewString(),
			Amount:      amount,
			Source:      savedSource,
			Destination: savedDestination,
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, timeoutAware(txCtx, err)
	}
	return result, nil
}

// lockPair takes both exclusive locks, smaller id first, and hands the
// records back in source/destination order.
func lockPair(ctx context.Context, tx Tx, sourceID, destinationID int64) (Account, Account, error) {
	firstID, firstSide := sourceID, SideSource
	secondID, secondSide := destinationID, SideDestination
	if secondID < firstID {
		firstID, secondID = secondID, firstID
		firstSide, secondSide = secondSide, firstSide
	}

	first, err := lockAccount(ctx, tx, firstID, firstSide)
	if err != nil {
		return Account{}, Account{}, err
	}
	second, err := lockAccount(ctx, tx, secondID, secondSide)
	if err != nil {
		return Account{}, Account{}, err
	}

	if firstSide == SideSource {
		return first, second, nil
	}
	return second, first, nil
}

func lockAccount(ctx context.Context, tx Tx, id int64, side Side) (Account, error) {
	account, err := tx.GetExclusive(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, &NotFoundError{ID: id, Side: side}
		}
		return Account{}, err
	}
	return account, nil
}

// timeoutAware reports an expired transaction budget as a lock timeout when the
// store surfaced it as a bare context error.
func timeoutAware(ctx context.Context, err error) error {
	if Kind(err) != "internal_error" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &LockTimeoutError{Err: err}
	}
	return err
}
