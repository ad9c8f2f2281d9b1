package domain

import "github.com/shopspring/decimal"

// BalanceChange is the result of a single-account deposit or withdrawal.
type BalanceChange struct {
	AccountNumber string          `json:"account_number"`
	OldBalance    decimal.Decimal `json:"old_balance"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	Entry         Entry           `json:"entry"`
}

// TransferResult is the result of a transfer between two accounts.
type TransferResult struct {
	SourceAccount string          `json:"source_account"`
	DestAccount   string          `json:"dest_account"`
	SourceBalance decimal.Decimal `json:"source_balance"`
	DestBalance   decimal.Decimal `json:"dest_balance"`
	Entry         Entry           `json:"entry"`
}
