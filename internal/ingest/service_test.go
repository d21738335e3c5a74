package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally-dev/tally/internal/model"
	"github.com/tally-dev/tally/internal/store"
)

// stmtRow is a shorthand statement line for building test CSVs.
type stmtRow struct {
	date    string
	desc    string
	paidOut string
	paidIn  string
	partner string
	txID    string
}

// statementCSV renders a 26-column TBC export with an English header row.
// Amounts repeat into the equivalent columns, so the file reads as a GEL
// account.
func statementCSV(t *testing.T, rows ...stmtRow) []byte {
	t.Helper()

	header := make([]string, 26)
	header[0], header[25] = "Date", "Transaction ID"

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(header))
	for _, r := range rows {
		rec := make([]string, 26)
		rec[0] = r.date
		rec[1] = r.desc
		rec[3], rec[4] = r.paidOut, r.paidOut
		rec[5], rec[6] = r.paidIn, r.paidIn
		rec[12] = r.partner
		rec[25] = r.txID
		require.NoError(t, w.Write(rec))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tally.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewService(st.Transactions, st.Uploads, zerolog.Nop()), st
}

func TestIngest_FirstUpload(t *testing.T) {
	svc, _ := newTestService(t)

	data := statementCSV(t,
		stmtRow{date: "03/11/2025", desc: "Products", paidOut: "25.50", txID: "T1"},
		stmtRow{date: "04/11/2025", desc: "Salary", paidIn: "2500.00", txID: "T2"},
	)
	summary, err := svc.Ingest(context.Background(), data, "statement_11111111.csv")
	require.NoError(t, err)

	assert.Equal(t, "11111111", summary.SourceAccount)
	assert.Equal(t, model.CurrencyGEL, summary.Currency)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 0, summary.DuplicatesSkipped)
	assert.Empty(t, summary.MalformedRows)
	assert.NotEmpty(t, summary.UploadID)
}

func TestIngest_IdempotentUpload(t *testing.T) {
	svc, _ := newTestService(t)
	data := statementCSV(t,
		stmtRow{date: "03/11/2025", paidOut: "25.50", txID: "T1"},
		stmtRow{date: "04/11/2025", paidIn: "2500.00", txID: "T2"},
		stmtRow{date: "05/11/2025", paidOut: "9.99", txID: "T3"},
	)

	first, err := svc.Ingest(context.Background(), data, "statement_11111111.csv")
	require.NoError(t, err)
	require.Equal(t, 3, first.Inserted)

	second, err := svc.Ingest(context.Background(), data, "statement_11111111.csv")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.DuplicatesSkipped)
}

func TestIngest_CrossAccountSameIDFlaggedBothLegs(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	// Two legs of one exchange share the transaction ID across accounts.
	_, err := svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "03/11/2025", desc: "FX sell", paidOut: "100.00", txID: "18171921369"},
	), "statement_11111111.csv")
	require.NoError(t, err)

	_, err = svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "03/11/2025", desc: "FX buy", paidIn: "271.50", txID: "18171921369"},
	), "statement_22222222.csv")
	require.NoError(t, err)

	txns, err := st.Transactions.ByAccounts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	for _, txn := range txns {
		assert.True(t, txn.IsInternalTransfer, "leg in %s should be flagged", txn.SourceAccount)
	}
}

func TestIngest_PartnerMatchWithoutCounterpart(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	// Account 11111111 becomes known first.
	_, err := svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "01/11/2025", paidIn: "500.00", txID: "T0"},
	), "statement_11111111.csv")
	require.NoError(t, err)

	// A later upload from another account references it as partner; the
	// counterpart row itself was never uploaded.
	summary, err := svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "02/11/2025", paidOut: "50.00", partner: "11111111", txID: "T1"},
	), "statement_22222222.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TransfersFlagged)

	txns, err := st.Transactions.ByAccounts(ctx, []string{"22222222"})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.True(t, txns[0].IsInternalTransfer)
}

func TestIngest_RetroactivePartnerFlagging(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	// This row names an account the store has not seen yet.
	_, err := svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "01/11/2025", paidOut: "50.00", partner: "22222222", txID: "T1"},
	), "statement_11111111.csv")
	require.NoError(t, err)

	txns, err := st.Transactions.ByAccounts(ctx, []string{"11111111"})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.False(t, txns[0].IsInternalTransfer)

	// Once the named account uploads anything, the old row is recognized.
	_, err = svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "02/11/2025", paidIn: "9.99", txID: "T2"},
	), "statement_22222222.csv")
	require.NoError(t, err)

	txns, err = st.Transactions.ByAccounts(ctx, []string{"11111111"})
	require.NoError(t, err)
	assert.True(t, txns[0].IsInternalTransfer)
}

func TestIngest_MalformedRowIsolation(t *testing.T) {
	svc, _ := newTestService(t)

	rows := make([]stmtRow, 0, 10)
	for i := 0; i < 10; i++ {
		id := "T" + string(rune('A'+i))
		if i == 4 {
			id = ""
		}
		rows = append(rows, stmtRow{date: "03/11/2025", paidOut: "1.00", txID: id})
	}

	summary, err := svc.Ingest(context.Background(), statementCSV(t, rows...), "statement_11111111.csv")
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Inserted)
	require.Len(t, summary.MalformedRows, 1)
	assert.Equal(t, "transaction_id", summary.MalformedRows[0].Field)
	assert.Equal(t, 6, summary.MalformedRows[0].Row)
}

func TestIngest_DirectionInvariant(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "03/11/2025", paidOut: "25.50", txID: "T1"},
		stmtRow{date: "04/11/2025", paidIn: "2500.00", txID: "T2"},
	), "statement_11111111.csv")
	require.NoError(t, err)

	txns, err := st.Transactions.ByAccounts(ctx, nil)
	require.NoError(t, err)
	for _, txn := range txns {
		assert.False(t, txn.AmountGEL.IsZero())
		assert.Equal(t, txn.AmountGEL.IsNegative(), txn.IsExpense)
	}
}

func TestIngest_RecordsUploadAudit(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	summary, err := svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "03/11/2025", paidOut: "25.50", txID: "T1"},
	), "statement_11111111.csv")
	require.NoError(t, err)

	uploads, err := st.Uploads.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, summary.UploadID, uploads[0].ID)
	assert.Equal(t, "statement_11111111.csv", uploads[0].Filename)
	assert.Equal(t, 1, uploads[0].Inserted)
}

func TestRescan_Idempotent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "03/11/2025", paidOut: "100.00", txID: "X1"},
	), "statement_11111111.csv")
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "03/11/2025", paidIn: "271.50", txID: "X1"},
	), "statement_22222222.csv")
	require.NoError(t, err)

	// Everything qualifying is already flagged by the uploads themselves.
	flagged, err := svc.Rescan(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, flagged)

	txns, err := st.Transactions.ByAccounts(ctx, nil)
	require.NoError(t, err)
	for _, txn := range txns {
		assert.True(t, txn.IsInternalTransfer)
	}
}

func TestRescan_ScopedToAccounts(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, statementCSV(t,
		stmtRow{date: "03/11/2025", paidOut: "10.00", txID: "Y1"},
	), "statement_11111111.csv")
	require.NoError(t, err)

	flagged, err := svc.Rescan(ctx, []string{"33333333"})
	require.NoError(t, err)
	assert.Equal(t, 0, flagged)

	txns, err := st.Transactions.ByAccounts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.False(t, txns[0].IsInternalTransfer)
}
