package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"finsight/internal/assist"
	"finsight/internal/events"
	applog "finsight/internal/log"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response    string          `json:"response"`
	Transaction *transactionDTO `json:"transaction,omitempty"`
}

// handleChat runs one extraction round trip. A model failure answers with
// a failure status carrying the apology narrative, so the client can
// render it inline.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	message := sanitizeInput(req.Message)
	if message == "" {
		writeError(w, http.StatusUnprocessableEntity, "message cannot be empty")
		return
	}

	result, err := s.assist.Chat(r.Context(), owner, message)
	if errors.Is(err, assist.ErrBusy) {
		writeError(w, http.StatusTooManyRequests, "another request is already in flight")
		return
	}
	if err != nil {
		reply := result.Response
		if reply == "" {
			reply = assist.ApologyMessage
		}
		writeJSON(w, http.StatusBadGateway, chatResponse{Response: reply})
		return
	}

	resp := chatResponse{Response: result.Response}
	if result.Transaction != nil {
		s.publishEvent(r.Context(), events.NewInsertedEvent(result.Transaction.ID, owner))
		dto := toDTO(*result.Transaction)
		resp.Transaction = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

type insightsRequest struct {
	Question string `json:"question"`
}

// handleInsights streams the model's analysis as plain text chunks. The
// connection closing cancels the upstream model stream.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())

	var req insightsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	chunks, err := s.assist.Insights(r.Context(), owner, sanitizeInput(req.Question))
	if errors.Is(err, assist.ErrBusy) {
		writeError(w, http.StatusTooManyRequests, "another request is already in flight")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "assistant unavailable")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		if chunk.Err != nil {
			slog.ErrorContext(r.Context(), "Insight stream error", applog.FieldOwner, owner, applog.FieldError, chunk.Err)
			return
		}
		if _, err := w.Write([]byte(chunk.Text)); err != nil {
			return
		}
		flusher.Flush()
	}
}
