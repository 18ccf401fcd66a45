// Package benefit holds the wire messages of the BenefitService gRPC API.
//
// Messages travel as JSON through the codec registered in this package, so
// clients must call with grpc.CallContentSubtype(CodecName). Monetary amounts
// are decimal strings.
package benefit

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// WithJSONCodec makes every call on the connection use the JSON codec.
func WithJSONCodec() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName))
}

type Account struct {
	Id          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Balance     string `json:"balance"`
	Active      bool   `json:"active"`
	Version     int64  `json:"version"`
}

// TransferRequest carries the amount as a decimal string; empty means missing.
type TransferRequest struct {
	SourceId      int64  `json:"source_id"`
	DestinationId int64  `json:"destination_id"`
	Amount        string `json:"amount"`
}

type TransferResponse struct {
	TransferId  string   `json:"transfer_id"`
	Message     string   `json:"message"`
	Amount      string   `json:"amount"`
	Source      *Account `json:"source"`
	Destination *Account `json:"destination"`
}

type GetAccountRequest struct {
	Id int64 `json:"id"`
}

type GetAccountResponse struct {
	Account *Account `json:"account"`
}

type ListAccountsRequest struct {
	ActiveOnly bool  `json:"active_only"`
	Limit      int32 `json:"limit"`
	Offset     int32 `json:"offset"`
}

type ListAccountsResponse struct {
	Accounts []*Account `json:"accounts"`
}

type CreateAccountRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Balance     string `json:"balance"`
	Active      *bool  `json:"active,omitempty"`
}

type CreateAccountResponse struct {
	Account *Account `json:"account"`
}

type UpdateAccountRequest struct {
	Id          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Balance     string `json:"balance"`
	Active      *bool  `json:"active,omitempty"`
	Version     int64  `json:"version"`
}

type UpdateAccountResponse struct {
	Account *Account `json:"account"`
}

type DeleteAccountRequest struct {
	Id int64 `json:"id"`
}

type DeleteAccountResponse struct{}
