// Package rpc serves the benefit account operations over gRPC.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/example/benefits/api/gen/benefit"
	"github.com/example/benefits/internal/benefit"
	"github.com/example/benefits/internal/security"
	"github.com/example/benefits/pkg/audit"
)

// Auditor records operation outcomes.
type Auditor interface {
	Record(ev audit.Event) *audit.LogEntry
}

// Server implements pb.BenefitServiceServer on top of the transfer engine and
// the account service.
type Server struct {
	pb.UnimplementedBenefitServiceServer

	engine  *benefit.TransferEngine
	service *benefit.AccountService
	auditor Auditor
	logger  *slog.Logger
}

// NewServer creates a Server. auditor may be nil.
func NewServer(engine *benefit.TransferEngine, service *benefit.AccountService, auditor Auditor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, service: service, auditor: auditor, logger: logger}
}

func (s *Server) Transfer(ctx context.Context, req *pb.TransferRequest) (*pb.TransferResponse, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}

	result, err := s.engine.Transfer(ctx, benefit.TransferRequest{
		SourceID:      req.SourceId,
		DestinationID: req.DestinationId,
		Amount:        amount,
	})
	fields := map[string]string{
		"source_id":      strconv.FormatInt(req.SourceId, 10),
		"destination_id": strconv.FormatInt(req.DestinationId, 10),
		"amount":         req.Amount,
	}
	if err != nil {
		fields["error"] = benefit.Kind(err)
		s.record(ctx, "transfer.rejected", fields)
		return nil, toStatus(err)
	}
	fields["transfer_id"] = result.TransferID
	s.record(ctx, "transfer.committed", fields)

	return &pb.TransferResponse{
		TransferId:  result.TransferID,
		Message:     benefit.TransferMessage,
		Amount:      benefit.FormatAmount(result.Amount),
		Source:      toAccount(result.Source),
		Destination: toAccount(result.Destination),
	}, nil
}

func (s *Server) GetAccount(ctx context.Context, req *pb.GetAccountRequest) (*pb.GetAccountResponse, error) {
	account, err := s.service.Get(ctx, req.Id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.GetAccountResponse{Account: toAccount(account)}, nil
}

func (s *Server) ListAccounts(ctx context.Context, req *pb.ListAccountsRequest) (*pb.ListAccountsResponse, error) {
	accounts, err := s.service.List(ctx, benefit.AccountFilter{
		ActiveOnly: req.ActiveOnly,
		Limit:      int(req.Limit),
		Offset:     int(req.Offset),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]*pb.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccount(a))
	}
	return &pb.ListAccountsResponse{Accounts: out}, nil
}

func (s *Server) CreateAccount(ctx context.Context, req *pb.CreateAccountRequest) (*pb.CreateAccountResponse, error) {
	balance, err := parseBalance(req.Balance)
	if err != nil {
		return nil, toStatus(err)
	}
	account, err := s.service.Create(ctx, benefit.CreateAccountRequest{
		Name:        req.Name,
		Description: req.Description,
		Balance:     balance,
		Active:      req.Active,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	s.record(ctx, "account.created", map[string]string{"account_id": strconv.FormatInt(account.ID, 10)})
	return &pb.CreateAccountResponse{Account: toAccount(account)}, nil
}

func (s *Server) UpdateAccount(ctx context.Context, req *pb.UpdateAccountRequest) (*pb.UpdateAccountResponse, error) {
	balance, err := parseBalance(req.Balance)
	if err != nil {
		return nil, toStatus(err)
	}
	account, err := s.service.Update(ctx, req.Id, benefit.UpdateAccountRequest{
		Name:        req.Name,
		Description: req.Description,
		Balance:     balance,
		Active:      req.Active,
		Version:     req.Version,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	s.record(ctx, "account.updated", map[string]string{
		"account_id": strconv.FormatInt(account.ID, 10),
		"version":    strconv.FormatInt(account.Version, 10),
	})
	return &pb.UpdateAccountResponse{Account: toAccount(account)}, nil
}

func (s *Server) DeleteAccount(ctx context.Context, req *pb.DeleteAccountRequest) (*pb.DeleteAccountResponse, error) {
	if err := s.service.Delete(ctx, req.Id); err != nil {
		return nil, toStatus(err)
	}
	s.record(ctx, "account.deleted", map[string]string{"account_id": strconv.FormatInt(req.Id, 10)})
	return &pb.DeleteAccountResponse{}, nil
}

func (s *Server) record(ctx context.Context, kind string, fields map[string]string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(audit.Event{
		Kind:          kind,
		CorrelationID: security.CorrelationIDFromContext(ctx),
		Fields:        fields,
	})
}

func parseAmount(raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, &benefit.ValidationError{Field: "amount", Reason: "must be a decimal number"}
	}
	return decimal.NewNullDecimal(d), nil
}

func parseBalance(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &benefit.ValidationError{Field: "balance", Reason: "must be a decimal number"}
	}
	return d, nil
}

func toAccount(a benefit.Account) *pb.Account {
	return &pb.Account{
		Id:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Balance:     benefit.FormatAmount(a.Balance),
		Active:      a.Active,
		Version:     a.Version,
	}
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, benefit.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, benefit.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, benefit.ErrInactive), errors.Is(err, benefit.ErrInsufficientFunds):
		code = codes.FailedPrecondition
	case errors.Is(err, benefit.ErrVersionConflict), errors.Is(err, benefit.ErrLockTimeout):
		code = codes.Aborted
	}
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}
