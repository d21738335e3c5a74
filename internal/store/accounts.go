package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tally-dev/tally/internal/model"
)

// AccountSummary describes one known account for reporting.
type AccountSummary struct {
	Account      string         `json:"account"`
	Currency     model.Currency `json:"currency"`
	Transactions int            `json:"transactions"`
	Transfers    int            `json:"internal_transfers"`
}

// UpsertAccount records the inferred native currency of an account. A
// re-upload refreshes the currency; the set of accounts only ever grows.
func (r *Transactions) UpsertAccount(ctx context.Context, account string, currency model.Currency) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (account, currency, created_at) VALUES (?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET currency = excluded.currency`,
		account, string(currency), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", account, err)
	}
	return nil
}

// AccountSummaries returns every known account with its transaction counts.
func (r *Transactions) AccountSummaries(ctx context.Context) ([]AccountSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.account, a.currency,
		       COUNT(t.id),
		       COALESCE(SUM(t.is_internal_transfer), 0)
		FROM accounts a
		LEFT JOIN transactions t ON t.source_account = a.account
		GROUP BY a.account, a.currency
		ORDER BY a.account`)
	if err != nil {
		return nil, fmt.Errorf("querying account summaries: %w", err)
	}
	defer rows.Close()

	var summaries []AccountSummary
	for rows.Next() {
		var s AccountSummary
		var currency string
		if err := rows.Scan(&s.Account, &currency, &s.Transactions, &s.Transfers); err != nil {
			return nil, fmt.Errorf("scanning account summary: %w", err)
		}
		s.Currency = model.Currency(currency)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
