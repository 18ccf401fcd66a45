package benefit

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Account is a benefit account holding a monetary balance.
//
// Accounts are passed by value. A record returned by a store is a private copy;
// mutating it has no effect until it is handed back to Save or Update.
type Account struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Balance     decimal.Decimal `json:"balance"`
	Active      bool            `json:"active"`
	Version     int64           `json:"version"`
}

// MarshalJSON renders the balance at its own scale.
func (a Account) MarshalJSON() ([]byte, error) {
	type plain Account
	return json.Marshal(struct {
		plain
		Balance string `json:"balance"`
	}{plain: plain(a), Balance: FormatAmount(a.Balance)})
}

// FormatAmount renders d with the number of fractional digits it carries, so
// 900.00 stays "900.00" instead of collapsing to "900".
func FormatAmount(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// AccountFilter narrows List results.
type AccountFilter struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Side identifies the role an account plays in a transfer.
type Side string

const (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

// CreateAccountRequest carries the fields accepted on account creation.
// Active defaults to true when nil.
type CreateAccountRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Balance     decimal.Decimal `json:"balance"`
	Active      *bool           `json:"active"`
}

// UpdateAccountRequest replaces the mutable fields of an account.
// Version must be the version last read by the caller. Active is left
// unchanged when nil.
type UpdateAccountRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Balance     decimal.Decimal `json:"balance"`
	Active      *bool           `json:"active"`
	Version     int64           `json:"version"`
}
