package benefit

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 255
)

// ValidateTransfer checks the request shape. It never touches the store.
func ValidateTransfer(req TransferRequest) error {
	if req.SourceID <= 0 {
		return validationErr("source_id", "source account id is required")
	}
	if req.DestinationID <= 0 {
		return validationErr("destination_id", "destination account id is required")
	}
	if !req.Amount.Valid {
		return validationErr("amount", "amount is required")
	}
	if !req.Amount.Decimal.IsPositive() {
		return validationErr("amount", "amount must be greater than zero")
	}
	if req.SourceID == req.DestinationID {
		return validationErr("destination_id", "source and destination accounts must be different")
	}
	return nil
}

// ValidateCreate checks the fields of a new account.
func ValidateCreate(req CreateAccountRequest) error {
	return validateFields(req.Name, req.Description, req.Balance)
}

// ValidateUpdate checks the fields of an account replacement.
func ValidateUpdate(id int64, req UpdateAccountRequest) error {
	if id <= 0 {
		return validationErr("id", "account id must be positive")
	}
	if req.Version <= 0 {
		return validationErr("version", "version is required")
	}
	return validateFields(req.Name, req.Description, req.Balance)
}

func validateFields(name, description string, balance decimal.Decimal) error {
	if strings.TrimSpace(name) == "" {
		return validationErr("name", "name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return validationErr("name", "name must be at most 100 characters")
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return validationErr("description", "description must be at most 255 characters")
	}
	if balance.IsNegative() {
		return validationErr("balance", "balance must not be negative")
	}
	return nil
}
