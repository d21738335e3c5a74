package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tally-dev/tally/internal/model"
	"github.com/tally-dev/tally/internal/statement"
	"github.com/tally-dev/tally/internal/store"
)

// maxUploadBytes caps statement uploads at 10MB.
const maxUploadBytes = 10 << 20

const queryDateFormat = "2006-01-02"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload ingests one statement CSV. File-level problems are client
// errors; row-level problems are reported inside the summary.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no filename provided")
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "file must be a CSV file")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large, maximum size is 10MB")
		return
	}

	summary, err := s.ingest.Ingest(r.Context(), data, header.Filename)
	if err != nil {
		if errors.Is(err, statement.ErrMalformedFilename) ||
			errors.Is(err, statement.ErrInconsistentCurrency) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Str("filename", header.Filename).Msg("upload failed")
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message: fmt.Sprintf("Added %d new transactions, %d duplicates skipped",
			summary.Inserted, summary.DuplicatesSkipped),
		Summary: summary,
	})
}

type uploadResponse struct {
	Message string `json:"message"`
	Summary any    `json:"summary"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := listFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txns, total, err := s.store.Transactions.List(r.Context(), f)
	if err != nil {
		s.log.Error().Err(err).Msg("listing transactions failed")
		writeError(w, http.StatusInternalServerError, "listing transactions failed")
		return
	}

	items := make([]transactionJSON, 0, len(txns))
	for _, t := range txns {
		items = append(items, toTransactionJSON(t))
	}
	writeJSON(w, http.StatusOK, listResponse{
		Transactions: items,
		Total:        total,
		Page:         f.Page,
		Limit:        f.Limit,
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.Transactions.AccountSummaries(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("listing accounts failed")
		writeError(w, http.StatusInternalServerError, "listing accounts failed")
		return
	}
	if summaries == nil {
		summaries = []store.AccountSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	uploads, err := s.store.Uploads.List(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("listing uploads failed")
		writeError(w, http.StatusInternalServerError, "listing uploads failed")
		return
	}
	if uploads == nil {
		uploads = []store.Upload{}
	}
	writeJSON(w, http.StatusOK, uploads)
}

func listFilterFromQuery(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()
	f := store.ListFilter{
		SourceAccount: q.Get("source_account"),
		ExpensesOnly:  q.Get("expenses_only") == "true",
		IncomeOnly:    q.Get("income_only") == "true",
		Page:          1,
		Limit:         50,
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return f, fmt.Errorf("invalid page %q", v)
		}
		f.Page = page
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 200 {
			return f, fmt.Errorf("invalid limit %q (1-200)", v)
		}
		f.Limit = limit
	}
	if v := q.Get("start_date"); v != "" {
		d, err := time.Parse(queryDateFormat, v)
		if err != nil {
			return f, fmt.Errorf("invalid start_date %q", v)
		}
		f.StartDate = d
	}
	if v := q.Get("end_date"); v != "" {
		d, err := time.Parse(queryDateFormat, v)
		if err != nil {
			return f, fmt.Errorf("invalid end_date %q", v)
		}
		f.EndDate = d
	}
	// Internal transfers are included unless explicitly excluded.
	f.ExcludeInternal = q.Get("include_internal") == "false"

	return f, nil
}

type listResponse struct {
	Transactions []transactionJSON `json:"transactions"`
	Total        int               `json:"total"`
	Page         int               `json:"page"`
	Limit        int               `json:"limit"`
}

type transactionJSON struct {
	ID                 int64  `json:"id"`
	TransactionID      string `json:"transaction_id"`
	SourceAccount      string `json:"source_account"`
	Date               string `json:"date"`
	Description        string `json:"description,omitempty"`
	AdditionalInfo     string `json:"additional_info,omitempty"`
	AmountGEL          string `json:"amount_gel"`
	AmountUSD          string `json:"amount_usd,omitempty"`
	IsExpense          bool   `json:"is_expense"`
	IsInternalTransfer bool   `json:"is_internal_transfer"`
	BalanceGEL         string `json:"balance_gel,omitempty"`
	TransactionType    string `json:"transaction_type,omitempty"`
	PartnerName        string `json:"partner_name,omitempty"`
	PartnerAccount     string `json:"partner_account,omitempty"`
	DocumentNumber     string `json:"document_number,omitempty"`
}

func toTransactionJSON(t model.Transaction) transactionJSON {
	j := transactionJSON{
		ID:                 t.ID,
		TransactionID:      t.TransactionID,
		SourceAccount:      t.SourceAccount,
		Date:               t.Date.Format(queryDateFormat),
		Description:        t.Description,
		AdditionalInfo:     t.AdditionalInfo,
		AmountGEL:          t.AmountGEL.StringFixed(2),
		IsExpense:          t.IsExpense,
		IsInternalTransfer: t.IsInternalTransfer,
		TransactionType:    t.TransactionType,
		PartnerName:        t.PartnerName,
		PartnerAccount:     t.PartnerAccount,
		DocumentNumber:     t.DocumentNumber,
	}
	if t.AmountUSD.Valid {
		j.AmountUSD = t.AmountUSD.Decimal.StringFixed(2)
	}
	if t.BalanceGEL.Valid {
		j.BalanceGEL = t.BalanceGEL.Decimal.StringFixed(2)
	}
	return j
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
