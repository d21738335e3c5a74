package statement

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/tally-dev/tally/internal/model"
)

// TBC names exports account_statement_<account>_<from>_<to>_<suffix>.csv.
var tbcFilenamePattern = regexp.MustCompile(`account_statement_(\d+)_`)

// digitRunPattern matches a contiguous run of at least 6 digits, the minimum
// length of a real account number token.
var digitRunPattern = regexp.MustCompile(`\d{6,}`)

// currencyTolerance absorbs last-cent rounding differences between the raw
// and the GEL-equivalent columns.
var currencyTolerance = decimal.NewFromFloat(0.01)

// AccountFromFilename extracts the owning account number from an upload
// filename. The standard TBC naming convention is tried first; otherwise the
// filename must embed exactly one contiguous digit run of length >= 6.
func AccountFromFilename(filename string) (string, error) {
	if m := tbcFilenamePattern.FindStringSubmatch(filename); m != nil {
		return m[1], nil
	}

	runs := digitRunPattern.FindAllString(filename, -1)
	switch len(runs) {
	case 0:
		return "", fmt.Errorf("%w: %q has no account number token", ErrMalformedFilename, filename)
	case 1:
		return runs[0], nil
	default:
		return "", fmt.Errorf("%w: %q has %d candidate account numbers", ErrMalformedFilename, filename, len(runs))
	}
}

// inferCurrency decides the account's native currency from the parsed rows.
// A GEL account reports identical raw and GEL-equivalent amounts; a USD
// account reports the raw amount in USD and the conversion in the equivalent
// column. Only rows where both sides of the populated direction are nonzero
// carry evidence; a zero-amount row makes the equality trivially true and is
// ignored. With no evidence at all the account defaults to GEL.
func inferCurrency(rows []row) (model.Currency, error) {
	sawGEL, sawUSD := false, false

	for _, r := range rows {
		raw, equiv := r.paidIn, r.paidInEquiv
		if r.outflow {
			raw, equiv = r.paidOut, r.paidOutEquiv
		}
		if raw.IsZero() || equiv.IsZero() {
			continue
		}
		if raw.Sub(equiv).Abs().LessThanOrEqual(currencyTolerance) {
			sawGEL = true
		} else {
			sawUSD = true
		}
	}

	if sawGEL && sawUSD {
		return "", ErrInconsistentCurrency
	}
	if sawUSD {
		return model.CurrencyUSD, nil
	}
	return model.CurrencyGEL, nil
}
