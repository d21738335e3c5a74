package statement

import (
	"bytes"
	"encoding/csv"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally-dev/tally/internal/model"
)

func headerRec() []string {
	rec := make([]string, tbcNumFields)
	rec[colDate] = "Date"
	rec[colDescription] = "Description"
	rec[colTransactionID] = "Transaction ID"
	return rec
}

func buildCSV(t *testing.T, recs ...[]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return buf.Bytes()
}

func TestParseFile_Fixture(t *testing.T) {
	data, err := os.ReadFile("../../testdata/account_statement_14274656_14102025_14012026_equ.csv")
	require.NoError(t, err)

	batch, err := ParseFile(data, "account_statement_14274656_14102025_14012026_equ.csv")
	require.NoError(t, err)

	assert.Equal(t, "14274656", batch.SourceAccount)
	assert.Equal(t, model.CurrencyGEL, batch.Currency)
	assert.Empty(t, batch.Malformed)
	require.Len(t, batch.Candidates, 3)

	// Outflow is negative, inflow positive; the BOM and bilingual header
	// block are not counted as rows.
	first := batch.Candidates[0]
	assert.Equal(t, 3, first.Row)
	assert.Equal(t, "TBC100001", first.Transaction.TransactionID)
	assert.Equal(t, "-25.50", first.Transaction.AmountGEL.StringFixed(2))
	assert.True(t, first.Transaction.IsExpense)
	assert.False(t, first.Transaction.AmountUSD.Valid)

	second := batch.Candidates[1]
	assert.Equal(t, "2500.00", second.Transaction.AmountGEL.StringFixed(2))
	assert.False(t, second.Transaction.IsExpense)
	assert.Equal(t, "GE29TB7777777777777777", second.Transaction.PartnerAccount)

	third := batch.Candidates[2]
	assert.Equal(t, "Own Savings", third.Transaction.PartnerName)
	require.True(t, third.Transaction.BalanceGEL.Valid)
	assert.Equal(t, "3374.50", third.Transaction.BalanceGEL.Decimal.StringFixed(2))
}

func TestParseFile_MalformedFilename(t *testing.T) {
	_, err := ParseFile(nil, "statement.csv")
	assert.ErrorIs(t, err, ErrMalformedFilename)
}

func TestParseFile_MalformedRowIsolation(t *testing.T) {
	recs := [][]string{headerRec()}
	for i := 0; i < 10; i++ {
		over := map[int]string{colTransactionID: "TX" + string(rune('A'+i))}
		if i == 4 {
			over[colTransactionID] = "" // row 6 in the file (header is row 1)
		}
		recs = append(recs, makeRec(over))
	}

	batch, err := ParseFile(buildCSV(t, recs...), "statement_12345678.csv")
	require.NoError(t, err)

	assert.Len(t, batch.Candidates, 9)
	require.Len(t, batch.Malformed, 1)
	assert.Equal(t, 6, batch.Malformed[0].Row)
	assert.Equal(t, "transaction_id", batch.Malformed[0].Field)
}

func TestParseFile_OrderPreserved(t *testing.T) {
	recs := [][]string{headerRec()}
	ids := []string{"T1", "T2", "T3", "T4"}
	for _, id := range ids {
		recs = append(recs, makeRec(map[int]string{colTransactionID: id}))
	}

	batch, err := ParseFile(buildCSV(t, recs...), "statement_12345678.csv")
	require.NoError(t, err)
	require.Len(t, batch.Candidates, 4)
	for i, c := range batch.Candidates {
		assert.Equal(t, ids[i], c.Transaction.TransactionID)
		assert.Equal(t, i+2, c.Row)
	}
}

func TestParseFile_BadDateAfterDataRows(t *testing.T) {
	recs := [][]string{
		headerRec(),
		makeRec(map[int]string{colTransactionID: "T1"}),
		makeRec(map[int]string{colDate: "NOTADATE", colTransactionID: "T2"}),
	}

	batch, err := ParseFile(buildCSV(t, recs...), "statement_12345678.csv")
	require.NoError(t, err)
	assert.Len(t, batch.Candidates, 1)
	require.Len(t, batch.Malformed, 1)
	assert.Equal(t, "date", batch.Malformed[0].Field)
	assert.Equal(t, 3, batch.Malformed[0].Row)
}

func TestParseFile_BOMStripped(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, buildCSV(t,
		headerRec(),
		makeRec(nil),
	)...)

	batch, err := ParseFile(data, "statement_12345678.csv")
	require.NoError(t, err)
	assert.Len(t, batch.Candidates, 1)
}

func TestParseFile_InconsistentCurrency(t *testing.T) {
	recs := [][]string{
		headerRec(),
		makeRec(map[int]string{colTransactionID: "T1"}), // 25.50 == 25.50: GEL
		makeRec(map[int]string{
			colPaidOut: "10.00", colPaidOutEquiv: "27.15", colTransactionID: "T2",
		}),
	}

	_, err := ParseFile(buildCSV(t, recs...), "statement_12345678.csv")
	assert.ErrorIs(t, err, ErrInconsistentCurrency)
}

func TestParseFile_USDAccount(t *testing.T) {
	recs := [][]string{
		headerRec(),
		makeRec(map[int]string{
			colPaidOut: "10.00", colPaidOutEquiv: "27.15", colTransactionID: "T1",
		}),
		makeRec(map[int]string{
			colPaidOut: "", colPaidOutEquiv: "",
			colPaidIn: "200.00", colPaidInEquiv: "543.00", colTransactionID: "T2",
		}),
	}

	batch, err := ParseFile(buildCSV(t, recs...), "statement_12345678.csv")
	require.NoError(t, err)
	assert.Equal(t, model.CurrencyUSD, batch.Currency)
	require.Len(t, batch.Candidates, 2)

	out := batch.Candidates[0].Transaction
	assert.Equal(t, "-27.15", out.AmountGEL.StringFixed(2))
	require.True(t, out.AmountUSD.Valid)
	assert.Equal(t, "-10.00", out.AmountUSD.Decimal.StringFixed(2))

	in := batch.Candidates[1].Transaction
	assert.Equal(t, "543.00", in.AmountGEL.StringFixed(2))
	require.True(t, in.AmountUSD.Valid)
	assert.Equal(t, "200.00", in.AmountUSD.Decimal.StringFixed(2))
}

func TestParseFile_BlankAndShortLeadingRowsSkipped(t *testing.T) {
	data := []byte("Account Statement\n\n" + string(buildCSV(t, headerRec(), makeRec(nil))))

	batch, err := ParseFile(data, "statement_12345678.csv")
	require.NoError(t, err)
	assert.Len(t, batch.Candidates, 1)
	assert.Empty(t, batch.Malformed)
}
