package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount indicates a non-positive or malformed amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSameAccount indicates a transfer whose source and destination are equal.
	ErrSameAccount = errors.New("source and destination accounts are the same")
	// ErrInsufficientFunds indicates that the debited account does not hold enough funds.
	// The attempt is still recorded as a FAILED entry.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// FailureInsufficientFunds is the failure reason stored with rejected debits.
const FailureInsufficientFunds = "insufficient funds"

// EntryType is the kind of balance-affecting operation an entry records.
type EntryType string

// Entry types.
const (
	EntryCreate   EntryType = "CREATE"
	EntryDeposit  EntryType = "DEPOSIT"
	EntryWithdraw EntryType = "WITHDRAW"
	EntryTransfer EntryType = "TRANSFER"
)

// EntryStatus is the outcome of a recorded operation.
type EntryStatus string

// Entry statuses.
const (
	StatusSuccess EntryStatus = "SUCCESS"
	StatusFailed  EntryStatus = "FAILED"
)

// AccountRef optionally references an account by number.
//
// Pure deposits carry no source account and pure withdrawals carry no
// destination account.
type AccountRef struct {
	Number string
	Valid  bool
}

// NoAccount is the empty account reference.
var NoAccount = AccountRef{}

// Ref returns a reference to the given account number.
func Ref(number string) AccountRef {
	return AccountRef{Number: number, Valid: true}
}

// Is reports whether r references the given account number.
func (r AccountRef) Is(number string) bool {
	return r.Valid && r.Number == number
}

func (r AccountRef) String() string {
	if !r.Valid {
		return "-"
	}
	return r.Number
}

// Value implements the driver.Valuer interface.
func (r AccountRef) Value() (driver.Value, error) {
	if !r.Valid {
		return nil, nil
	}
	return r.Number, nil
}

// Scan implements the sql.Scanner interface.
func (r *AccountRef) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = NoAccount
	case string:
		*r = Ref(v)
	case []byte:
		*r = Ref(string(v))
	default:
		return fmt.Errorf("cannot scan %T into AccountRef", src)
	}

	return nil
}

// MarshalJSON encodes an empty reference as null.
func (r AccountRef) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Number)
}

// UnmarshalJSON decodes null as an empty reference.
func (r *AccountRef) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = NoAccount
		return nil
	}

	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}

	*r = Ref(n)

	return nil
}

// Entry is one immutable audit record of an attempted balance-affecting operation.
type Entry struct {
	ID                  int64               `json:"id"`
	Type                EntryType           `json:"type"`
	SourceAccount       AccountRef          `json:"source_account"`
	DestAccount         AccountRef          `json:"dest_account"`
	Amount              decimal.Decimal     `json:"amount"`
	BalanceBeforeSource decimal.NullDecimal `json:"balance_before_source"`
	BalanceAfterSource  decimal.NullDecimal `json:"balance_after_source"`
	BalanceBeforeDest   decimal.NullDecimal `json:"balance_before_dest"`
	BalanceAfterDest    decimal.NullDecimal `json:"balance_after_dest"`
	Description         string              `json:"description"`
	Status              EntryStatus         `json:"status"`
	FailureReason       string              `json:"failure_reason,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
}

// Touches reports whether the entry involves the account on either side.
func (e Entry) Touches(number string) bool {
	return e.SourceAccount.Is(number) || e.DestAccount.Is(number)
}

// ListEntriesParams is the input data to query the transaction log.
type ListEntriesParams struct {
	Account AccountRef `json:"account"`
	Limit   int32      `json:"limit"`
}

// Balance wraps a decimal as a present optional balance.
func Balance(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
