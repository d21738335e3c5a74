package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the native currency of a bank account.
type Currency string

const (
	CurrencyGEL Currency = "GEL"
	CurrencyUSD Currency = "USD"
)

// Key is the composite identity of a stored transaction. A transaction ID
// alone is not unique: currency-exchange operations reuse one ID for the
// debit leg in one account and the credit leg in the other.
type Key struct {
	TransactionID string
	SourceAccount string
}

// Transaction is one canonical statement line.
type Transaction struct {
	ID             int64 // database row ID, zero until stored
	TransactionID  string
	SourceAccount  string
	Date           time.Time
	Description    string
	AdditionalInfo string

	// AmountGEL is signed: negative = outflow, positive = inflow.
	AmountGEL decimal.Decimal
	// AmountUSD is set only for accounts whose native currency is USD,
	// signed the same way as AmountGEL.
	AmountUSD decimal.NullDecimal

	IsExpense          bool
	IsInternalTransfer bool

	// BalanceGEL is the post-transaction balance snapshot, informational only.
	BalanceGEL decimal.NullDecimal

	TransactionType string
	PartnerName     string
	PartnerAccount  string
	DocumentNumber  string
}

// Key returns the composite dedup key.
func (t Transaction) Key() Key {
	return Key{TransactionID: t.TransactionID, SourceAccount: t.SourceAccount}
}
