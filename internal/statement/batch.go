package statement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally-dev/tally/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Candidate is one successfully normalized transaction plus the line it
// originated from.
type Candidate struct {
	Row         int
	Transaction model.Transaction
}

// Batch is the result of normalizing one statement file. Candidates preserve
// the original row order; one malformed row never discards the rest of the
// file.
type Batch struct {
	SourceAccount string
	Currency      model.Currency
	Candidates    []Candidate
	Malformed     []*RowError
}

// ParseFile normalizes raw statement bytes into a candidate batch.
// File-level problems (unreadable CSV, ambiguous filename, inconsistent
// currency) fail the whole batch; row-level problems are collected in
// Batch.Malformed.
func ParseFile(data []byte, filename string) (*Batch, error) {
	account, err := AccountFromFilename(filename)
	if err != nil {
		return nil, err
	}

	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading statement CSV: %w", err)
	}

	var rows []row
	var malformed []*RowError

	// Leading rows whose first column is not a date are the bilingual header
	// block. Once data rows start, a bad date is a malformed row.
	seenData := false
	for i, rec := range records {
		num := i + 1
		if isBlank(rec) {
			continue
		}
		if len(rec) != tbcNumFields {
			if !seenData {
				continue
			}
			malformed = append(malformed, &RowError{Row: num, Field: "columns"})
			continue
		}
		if !seenData && !isDate(rec[colDate]) {
			continue
		}

		r, err := parseRow(rec, num)
		if err != nil {
			var rerr *RowError
			if !errors.As(err, &rerr) {
				return nil, err
			}
			seenData = true
			malformed = append(malformed, rerr)
			continue
		}
		seenData = true
		rows = append(rows, r)
	}

	currency, err := inferCurrency(rows)
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		SourceAccount: account,
		Currency:      currency,
		Malformed:     malformed,
	}
	for _, r := range rows {
		batch.Candidates = append(batch.Candidates, Candidate{
			Row:         r.num,
			Transaction: buildTransaction(r, account, currency),
		})
	}
	return batch, nil
}

// buildTransaction converts a normalized row into the canonical entity once
// the file-level currency decision is made. The GEL amount comes from the
// equivalent column (falling back to the raw column for GEL accounts that
// leave it empty) and is negated for outflows.
func buildTransaction(r row, account string, currency model.Currency) model.Transaction {
	raw, equiv := r.paidIn, r.paidInEquiv
	if r.outflow {
		raw, equiv = r.paidOut, r.paidOutEquiv
	}

	amountGEL := equiv
	if amountGEL.IsZero() {
		amountGEL = raw
	}
	var amountUSD decimal.NullDecimal
	if currency == model.CurrencyUSD {
		amountUSD = decimal.NewNullDecimal(raw)
	}
	if r.outflow {
		amountGEL = amountGEL.Neg()
		if amountUSD.Valid {
			amountUSD.Decimal = amountUSD.Decimal.Neg()
		}
	}

	var balance decimal.NullDecimal
	if r.hasBalance {
		balance = decimal.NewNullDecimal(r.balanceEquiv)
	}

	return model.Transaction{
		TransactionID:   r.transactionID,
		SourceAccount:   account,
		Date:            r.date,
		Description:     r.description,
		AdditionalInfo:  r.additionalInfo,
		AmountGEL:       amountGEL,
		AmountUSD:       amountUSD,
		IsExpense:       r.outflow,
		BalanceGEL:      balance,
		TransactionType: r.txnType,
		PartnerName:     r.partnerName,
		PartnerAccount:  r.partnerAccount,
		DocumentNumber:  r.documentNumber,
	}
}

func isBlank(rec []string) bool {
	for _, cell := range rec {
		if cell != "" {
			return false
		}
	}
	return true
}

func isDate(cell string) bool {
	_, err := time.Parse(tbcDateFormat, strings.TrimSpace(cell))
	return err == nil
}
