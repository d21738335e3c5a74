package statement

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TBC Bank account statement exports carry 26 bilingual-header columns.
// Only the columns below have meaning for the pipeline; the rest are
// carried through the export unused.
const (
	tbcNumFields  = 26
	tbcDateFormat = "02/01/2006"

	colDate           = 0
	colDescription    = 1
	colAdditionalInfo = 2
	colPaidOut        = 3
	colPaidOutEquiv   = 4
	colPaidIn         = 5
	colPaidInEquiv    = 6
	colBalance        = 7
	colBalanceEquiv   = 8
	colType           = 9
	colDocumentNumber = 11
	colPartnerAccount = 12
	colPartnerName    = 13
	colTransactionID  = 25
)

// row is one normalized TBC statement line before the file-level currency
// decision is made.
type row struct {
	num            int // 1-based line number in the file
	date           time.Time
	description    string
	additionalInfo string
	paidOut        decimal.Decimal
	paidOutEquiv   decimal.Decimal
	paidIn         decimal.Decimal
	paidInEquiv    decimal.Decimal
	balanceEquiv   decimal.Decimal
	hasBalance     bool
	txnType        string
	documentNumber string
	partnerAccount string
	partnerName    string
	transactionID  string
	outflow        bool
}

// parseRow validates and normalizes one 26-field record. Pure transform.
func parseRow(rec []string, num int) (row, error) {
	r := row{num: num}

	date, err := time.Parse(tbcDateFormat, strings.TrimSpace(rec[colDate]))
	if err != nil {
		return row{}, &RowError{Row: num, Field: "date"}
	}
	r.date = date

	// The transaction ID is the row's irreplaceable identity; without it the
	// row can be neither deduplicated nor stored.
	r.transactionID = strings.TrimSpace(rec[colTransactionID])
	if r.transactionID == "" {
		return row{}, &RowError{Row: num, Field: "transaction_id"}
	}

	if r.paidOut, err = parseDecimal(rec[colPaidOut]); err != nil {
		return row{}, &RowError{Row: num, Field: "paid_out"}
	}
	if r.paidOutEquiv, err = parseDecimal(rec[colPaidOutEquiv]); err != nil {
		return row{}, &RowError{Row: num, Field: "paid_out_equiv"}
	}
	if r.paidIn, err = parseDecimal(rec[colPaidIn]); err != nil {
		return row{}, &RowError{Row: num, Field: "paid_in"}
	}
	if r.paidInEquiv, err = parseDecimal(rec[colPaidInEquiv]); err != nil {
		return row{}, &RowError{Row: num, Field: "paid_in_equiv"}
	}
	if _, err = parseDecimal(rec[colBalance]); err != nil {
		return row{}, &RowError{Row: num, Field: "balance"}
	}
	if r.balanceEquiv, err = parseDecimal(rec[colBalanceEquiv]); err != nil {
		return row{}, &RowError{Row: num, Field: "balance_equiv"}
	}
	r.hasBalance = strings.TrimSpace(rec[colBalanceEquiv]) != ""

	out := !r.paidOut.IsZero() || !r.paidOutEquiv.IsZero()
	in := !r.paidIn.IsZero() || !r.paidInEquiv.IsZero()
	if out == in {
		// Both sides zero, or both sides populated.
		return row{}, &RowError{Row: num, Field: "direction"}
	}
	r.outflow = out

	r.description = strings.TrimSpace(rec[colDescription])
	r.additionalInfo = strings.TrimSpace(rec[colAdditionalInfo])
	r.txnType = strings.TrimSpace(rec[colType])
	r.documentNumber = strings.TrimSpace(rec[colDocumentNumber])
	r.partnerAccount = strings.TrimSpace(rec[colPartnerAccount])
	r.partnerName = strings.TrimSpace(rec[colPartnerName])

	return r, nil
}

// parseDecimal parses a TBC amount cell. Empty means zero, not an error.
// Some exports use a comma as the decimal separator.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	return decimal.NewFromString(s)
}
