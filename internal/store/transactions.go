package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tally-dev/tally/internal/model"
)

const dateFormat = "2006-01-02"

// inChunkSize bounds IN(...) parameter lists well below sqlite's variable
// limit.
const inChunkSize = 500

// Transactions is the repository for canonical statement lines.
type Transactions struct {
	db  *sql.DB
	log zerolog.Logger
}

const transactionColumns = `id, transaction_id, source_account, date, description,
	additional_info, amount_gel, amount_usd, is_expense, is_internal_transfer,
	balance_gel, transaction_type, partner_name, partner_account, document_number`

// ExistingIDs returns the transaction IDs already stored for one account.
func (r *Transactions) ExistingIDs(ctx context.Context, account string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT transaction_id FROM transactions WHERE source_account = ?`, account)
	if err != nil {
		return nil, fmt.Errorf("querying existing IDs: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning transaction ID: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// BulkInsert stores transactions inside one database transaction. A row
// rejected by the unique identity index (a concurrent upload won the race)
// is counted as a duplicate, not an error.
func (r *Transactions) BulkInsert(ctx context.Context, txns []model.Transaction) (inserted, duplicates int, err error) {
	if len(txns) == 0 {
		return 0, 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			transaction_id, source_account, date, description, additional_info,
			amount_gel, amount_usd, is_expense, is_internal_transfer,
			balance_gel, transaction_type, partner_name, partner_account,
			document_number, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, t := range txns {
		res, err := stmt.ExecContext(ctx,
			t.TransactionID,
			t.SourceAccount,
			t.Date.Format(dateFormat),
			t.Description,
			t.AdditionalInfo,
			t.AmountGEL.StringFixed(2),
			nullDecimalString(t.AmountUSD),
			t.IsExpense,
			t.IsInternalTransfer,
			nullDecimalString(t.BalanceGEL),
			t.TransactionType,
			t.PartnerName,
			t.PartnerAccount,
			t.DocumentNumber,
			now,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("inserting %s/%s: %w", t.TransactionID, t.SourceAccount, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("checking insert result: %w", err)
		}
		if n == 0 {
			r.log.Debug().
				Str("transaction_id", t.TransactionID).
				Str("account", t.SourceAccount).
				Msg("insert lost to concurrent upload, counted as duplicate")
			duplicates++
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing insert: %w", err)
	}
	return inserted, duplicates, nil
}

// KnownAccounts returns every distinct source account ever stored.
func (r *Transactions) KnownAccounts(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT source_account FROM transactions ORDER BY source_account`)
	if err != nil {
		return nil, fmt.Errorf("querying known accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CounterpartLegs returns stored transactions sharing any of the given
// transaction IDs, regardless of account. Used by the same-ID transfer rule
// to find the other leg of an exchange or inter-account move.
func (r *Transactions) CounterpartLegs(ctx context.Context, ids []string) ([]model.Transaction, error) {
	var legs []model.Transaction
	for start := 0; start < len(ids); start += inChunkSize {
		end := min(start+inChunkSize, len(ids))
		chunk := ids[start:end]

		query := fmt.Sprintf(
			`SELECT %s FROM transactions WHERE transaction_id IN (%s) ORDER BY id`,
			transactionColumns, placeholders(len(chunk)))
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("querying counterpart legs: %w", err)
		}
		batch, err := collectTransactions(rows)
		if err != nil {
			return nil, err
		}
		legs = append(legs, batch...)
	}
	return legs, nil
}

// MarkInternal flags the given transactions as internal transfers. Already
// flagged rows are untouched; flags only ever go from false to true.
func (r *Transactions) MarkInternal(ctx context.Context, keys []model.Key) (int, error) {
	flagged := 0
	for _, k := range keys {
		res, err := r.db.ExecContext(ctx, `
			UPDATE transactions SET is_internal_transfer = 1
			WHERE transaction_id = ? AND source_account = ? AND is_internal_transfer = 0`,
			k.TransactionID, k.SourceAccount)
		if err != nil {
			return flagged, fmt.Errorf("flagging %s/%s: %w", k.TransactionID, k.SourceAccount, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return flagged, fmt.Errorf("checking flag result: %w", err)
		}
		flagged += int(n)
	}
	return flagged, nil
}

// MarkInternalByPartner flags stored rows whose partner account is the given
// own account. Covers counterpart legs that became identifiable only once
// this account's first statement arrived.
func (r *Transactions) MarkInternalByPartner(ctx context.Context, account string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET is_internal_transfer = 1
		WHERE partner_account = ? AND source_account <> ? AND is_internal_transfer = 0`,
		account, account)
	if err != nil {
		return 0, fmt.Errorf("flagging partner matches for %s: %w", account, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking partner flag result: %w", err)
	}
	return int(n), nil
}

// ByAccounts returns all stored transactions for the given accounts, in
// insertion order. An empty account list means every account.
func (r *Transactions) ByAccounts(ctx context.Context, accounts []string) ([]model.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions ORDER BY id`, transactionColumns)
	var args []any
	if len(accounts) > 0 {
		query = fmt.Sprintf(
			`SELECT %s FROM transactions WHERE source_account IN (%s) ORDER BY id`,
			transactionColumns, placeholders(len(accounts)))
		for _, a := range accounts {
			args = append(args, a)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	return collectTransactions(rows)
}

// ListFilter narrows and pages List results.
type ListFilter struct {
	StartDate       time.Time
	EndDate         time.Time
	SourceAccount   string
	ExcludeInternal bool
	ExpensesOnly    bool
	IncomeOnly      bool
	Page            int
	Limit           int
}

// List returns a page of transactions, newest first, plus the total count
// matching the filter.
func (r *Transactions) List(ctx context.Context, f ListFilter) ([]model.Transaction, int, error) {
	where, args := f.clauses()

	var total int
	countQuery := "SELECT COUNT(*) FROM transactions" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting transactions: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	query := fmt.Sprintf(
		`SELECT %s FROM transactions%s ORDER BY date DESC, id DESC LIMIT ? OFFSET ?`,
		transactionColumns, where)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing transactions: %w", err)
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (f ListFilter) clauses() (string, []any) {
	var conds []string
	var args []any

	if !f.StartDate.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, f.StartDate.Format(dateFormat))
	}
	if !f.EndDate.IsZero() {
		conds = append(conds, "date <= ?")
		args = append(args, f.EndDate.Format(dateFormat))
	}
	if f.SourceAccount != "" {
		conds = append(conds, "source_account = ?")
		args = append(args, f.SourceAccount)
	}
	if f.ExcludeInternal {
		conds = append(conds, "is_internal_transfer = 0")
	}
	if f.ExpensesOnly {
		conds = append(conds, "is_expense = 1")
	} else if f.IncomeOnly {
		conds = append(conds, "is_expense = 0")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func scanTransaction(rows *sql.Rows) (model.Transaction, error) {
	var t model.Transaction
	var date, amountGEL string
	var amountUSD, balanceGEL sql.NullString

	err := rows.Scan(
		&t.ID, &t.TransactionID, &t.SourceAccount, &date, &t.Description,
		&t.AdditionalInfo, &amountGEL, &amountUSD, &t.IsExpense,
		&t.IsInternalTransfer, &balanceGEL, &t.TransactionType,
		&t.PartnerName, &t.PartnerAccount, &t.DocumentNumber,
	)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("scanning transaction: %w", err)
	}

	if t.Date, err = time.Parse(dateFormat, date); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing stored date %q: %w", date, err)
	}
	if t.AmountGEL, err = decimal.NewFromString(amountGEL); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing stored amount %q: %w", amountGEL, err)
	}
	if t.AmountUSD, err = scanNullDecimal(amountUSD); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing stored USD amount: %w", err)
	}
	if t.BalanceGEL, err = scanNullDecimal(balanceGEL); err != nil {
		return model.Transaction{}, fmt.Errorf("parsing stored balance: %w", err)
	}
	return t, nil
}

func scanNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func nullDecimalString(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.StringFixed(2)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
