// Package ingest orchestrates the statement pipeline: normalize, dedup,
// detect internal transfers, persist.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tally-dev/tally/internal/model"
	"github.com/tally-dev/tally/internal/statement"
	"github.com/tally-dev/tally/internal/store"
)

// Store is the persistence capability the pipeline consumes. Implemented by
// *store.Transactions.
type Store interface {
	ExistingIDs(ctx context.Context, account string) (map[string]struct{}, error)
	BulkInsert(ctx context.Context, txns []model.Transaction) (inserted, duplicates int, err error)
	KnownAccounts(ctx context.Context) ([]string, error)
	CounterpartLegs(ctx context.Context, ids []string) ([]model.Transaction, error)
	MarkInternal(ctx context.Context, keys []model.Key) (int, error)
	MarkInternalByPartner(ctx context.Context, account string) (int, error)
	ByAccounts(ctx context.Context, accounts []string) ([]model.Transaction, error)
	UpsertAccount(ctx context.Context, account string, currency model.Currency) error
}

// UploadLog records per-run audit rows. Implemented by *store.Uploads.
type UploadLog interface {
	Record(ctx context.Context, u store.Upload) error
}

// MalformedRow is one rejected row in an upload summary.
type MalformedRow struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
}

// Summary is the outcome of one upload, consumed by the CLI and the HTTP
// surface.
type Summary struct {
	UploadID          string         `json:"upload_id"`
	Filename          string         `json:"filename"`
	SourceAccount     string         `json:"source_account"`
	Currency          model.Currency `json:"currency"`
	Inserted          int            `json:"inserted"`
	DuplicatesSkipped int            `json:"duplicates_skipped"`
	TransfersFlagged  int            `json:"transfers_flagged"`
	MalformedRows     []MalformedRow `json:"malformed_rows"`
}

// Service runs the ingestion pipeline for one upload at a time.
type Service struct {
	store   Store
	uploads UploadLog
	log     zerolog.Logger
}

// NewService creates an ingestion Service.
func NewService(st Store, uploads UploadLog, log zerolog.Logger) *Service {
	return &Service{
		store:   st,
		uploads: uploads,
		log:     log.With().Str("component", "ingest").Logger(),
	}
}

// Ingest processes one uploaded statement file end to end: normalize rows,
// drop duplicates of already-stored rows, flag internal transfers, persist
// the rest. Row-level failures are reported in the summary; only file-level
// failures (bad filename, unreadable CSV, inconsistent currency) return an
// error.
func (s *Service) Ingest(ctx context.Context, data []byte, filename string) (*Summary, error) {
	batch, err := statement.ParseFile(data, filename)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ExistingIDs(ctx, batch.SourceAccount)
	if err != nil {
		return nil, fmt.Errorf("loading existing IDs for %s: %w", batch.SourceAccount, err)
	}
	toInsert, duplicates := resolveDuplicates(batch.Candidates, existing)

	txns := make([]model.Transaction, len(toInsert))
	for i, c := range toInsert {
		txns[i] = c.Transaction
	}

	// Transfer detection runs strictly after the dedup partition so a
	// duplicate row cannot fabricate a phantom second leg.
	own, err := s.store.KnownAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading known accounts: %w", err)
	}
	own = append(own, batch.SourceAccount)

	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.TransactionID
	}
	stored, err := s.store.CounterpartLegs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading counterpart legs: %w", err)
	}

	det := detectTransfers(txns, stored, own)
	for _, i := range det.flagged {
		txns[i].IsInternalTransfer = true
	}

	inserted, raceDuplicates, err := s.store.BulkInsert(ctx, txns)
	if err != nil {
		return nil, fmt.Errorf("persisting batch: %w", err)
	}
	duplicates += raceDuplicates

	flagged := len(det.flagged)
	retro, err := s.store.MarkInternal(ctx, det.counterparts)
	if err != nil {
		return nil, fmt.Errorf("flagging counterpart legs: %w", err)
	}
	flagged += retro

	// Stored rows in other accounts may reference this account as their
	// partner; they became identifiable the moment this account appeared.
	partner, err := s.store.MarkInternalByPartner(ctx, batch.SourceAccount)
	if err != nil {
		return nil, fmt.Errorf("flagging partner matches: %w", err)
	}
	flagged += partner

	if err := s.store.UpsertAccount(ctx, batch.SourceAccount, batch.Currency); err != nil {
		return nil, err
	}

	summary := &Summary{
		UploadID:          uuid.NewString(),
		Filename:          filename,
		SourceAccount:     batch.SourceAccount,
		Currency:          batch.Currency,
		Inserted:          inserted,
		DuplicatesSkipped: duplicates,
		TransfersFlagged:  flagged,
		MalformedRows:     make([]MalformedRow, 0, len(batch.Malformed)),
	}
	for _, rerr := range batch.Malformed {
		summary.MalformedRows = append(summary.MalformedRows, MalformedRow{Row: rerr.Row, Field: rerr.Field})
	}

	if err := s.uploads.Record(ctx, store.Upload{
		ID:                summary.UploadID,
		Filename:          filename,
		SourceAccount:     summary.SourceAccount,
		Inserted:          summary.Inserted,
		DuplicatesSkipped: summary.DuplicatesSkipped,
		MalformedRows:     len(summary.MalformedRows),
		TransfersFlagged:  summary.TransfersFlagged,
	}); err != nil {
		return nil, fmt.Errorf("recording upload: %w", err)
	}

	s.log.Info().
		Str("upload_id", summary.UploadID).
		Str("account", summary.SourceAccount).
		Int("inserted", summary.Inserted).
		Int("duplicates", summary.DuplicatesSkipped).
		Int("flagged", summary.TransfersFlagged).
		Int("malformed", len(summary.MalformedRows)).
		Msg("upload ingested")

	return summary, nil
}

// Rescan re-runs transfer detection over stored rows, scoped to the given
// accounts (all accounts when empty). Idempotent: already-flagged rows stay
// flagged and unmatched rows are never un-flagged.
func (s *Service) Rescan(ctx context.Context, accounts []string) (int, error) {
	txns, err := s.store.ByAccounts(ctx, accounts)
	if err != nil {
		return 0, fmt.Errorf("loading transactions: %w", err)
	}
	if len(txns) == 0 {
		return 0, nil
	}

	own, err := s.store.KnownAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading known accounts: %w", err)
	}

	// Counterpart legs may live outside the scoped accounts.
	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.TransactionID
	}
	legs, err := s.store.CounterpartLegs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("loading counterpart legs: %w", err)
	}

	tc := &transferContext{
		ownAccounts: make(map[string]struct{}, len(own)),
		legsByID:    make(map[string][]model.Key, len(legs)),
	}
	for _, a := range own {
		tc.ownAccounts[a] = struct{}{}
	}
	for _, t := range legs {
		tc.legsByID[t.TransactionID] = append(tc.legsByID[t.TransactionID], t.Key())
	}

	var keys []model.Key
	for _, t := range txns {
		if t.IsInternalTransfer {
			continue
		}
		if matchesAny(t, tc) {
			keys = append(keys, t.Key())
		}
	}

	flagged, err := s.store.MarkInternal(ctx, keys)
	if err != nil {
		return flagged, fmt.Errorf("flagging transfers: %w", err)
	}
	s.log.Info().Int("flagged", flagged).Strs("accounts", accounts).Msg("transfer rescan complete")
	return flagged, nil
}
