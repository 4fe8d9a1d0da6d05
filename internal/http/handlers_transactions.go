package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"finsight/internal/core"
	"finsight/internal/events"
	applog "finsight/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	txs, err := s.store.List(r.Context(), owner)
	if err != nil {
		slog.ErrorContext(r.Context(), "List transactions failed", applog.FieldOwner, owner, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}

	dtos := make([]transactionDTO, 0, len(txs))
	for _, t := range txs {
		dtos = append(dtos, toDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

type createTransactionRequest struct {
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Type        string      `json:"type"`
	Date        string      `json:"date"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount.String())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	date := core.DateOf(time.Now())
	if req.Date != "" {
		date, err = core.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid date, want YYYY-MM-DD")
			return
		}
	}

	t := core.Transaction{
		Amount:      core.Money{Cents: cents},
		Description: sanitizeInput(req.Description),
		Category:    core.Category(req.Category),
		Type:        core.TxType(req.Type),
		Date:        date,
	}
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	stored, err := s.store.Insert(r.Context(), owner, t)
	if err != nil {
		slog.ErrorContext(r.Context(), "Insert transaction failed", applog.FieldOwner, owner, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to store transaction")
		return
	}

	s.publishEvent(r.Context(), events.NewInsertedEvent(stored.ID, owner))

	writeJSON(w, http.StatusCreated, toDTO(stored))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	deleted, err := s.store.Delete(r.Context(), owner, id)
	if err != nil {
		slog.ErrorContext(r.Context(), "Delete transaction failed", applog.FieldOwner, owner, applog.FieldRecordID, id, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	s.publishEvent(r.Context(), events.NewDeletedEvent(id, owner))

	w.WriteHeader(http.StatusNoContent)
}

type summaryResponse struct {
	TotalIncome   float64            `json:"total_income"`
	TotalExpenses float64            `json:"total_expenses"`
	NetBalance    float64            `json:"net_balance"`
	Count         int                `json:"count"`
	ByCategory    map[string]float64 `json:"by_category"`
	Recent        []string           `json:"recent"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	summary, ok := s.summaryCache.Get(owner)
	if !ok {
		s.watchOwner(owner)
		txs, err := s.store.List(r.Context(), owner)
		if err != nil {
			slog.ErrorContext(r.Context(), "List for summary failed", applog.FieldOwner, owner, applog.FieldError, err)
			writeError(w, http.StatusInternalServerError, "failed to load transactions")
			return
		}
		summary = core.Summarize(txs)
		s.summaryCache.Set(owner, summary)
	}

	byCategory := make(map[string]float64, len(summary.ByCategory))
	for cat, amount := range summary.ByCategory {
		byCategory[string(cat)] = amount.Dollars()
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		TotalIncome:   summary.TotalIncome.Dollars(),
		TotalExpenses: summary.TotalExpenses.Dollars(),
		NetBalance:    summary.NetBalance.Dollars(),
		Count:         summary.Count,
		ByCategory:    byCategory,
		Recent:        summary.Recent,
	})
}
