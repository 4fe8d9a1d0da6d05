// Package assist implements the aggregation and natural-language
// transaction pipeline: summarize records, build prompts, call the hosted
// model, and parse structured payloads out of its responses.
package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finsight/internal/core"
	"finsight/internal/llm"
	"finsight/internal/store"
)

// ErrBusy is returned when a user already has a model request in flight.
// Duplicate submissions are rejected rather than run concurrently.
var ErrBusy = errors.New("another assistant request is already in flight")

// ApologyMessage is the user-visible fallback when the model call fails.
const ApologyMessage = "Sorry, I'm having trouble processing your request. Please try again."

const transactionAddedNote = "\n\n✅ Transaction added successfully!"

type ChatResult struct {
	Response    string
	Transaction *core.Transaction // the stored record, when one was merged
}

type Service struct {
	store     store.TransactionStore
	completer llm.Completer
	streamer  llm.Streamer

	mu       sync.Mutex
	inflight map[string]bool
}

func NewService(st store.TransactionStore, completer llm.Completer, streamer llm.Streamer) *Service {
	return &Service{
		store:     st,
		completer: completer,
		streamer:  streamer,
		inflight:  make(map[string]bool),
	}
}

// Chat sends a user message through the extraction protocol. A transport
// failure yields the apology narrative and the error. A malformed payload
// is recoverable: the narrative is kept, the transaction dropped.
func (s *Service) Chat(ctx context.Context, owner, message string) (ChatResult, error) {
	if err := s.acquire(owner); err != nil {
		return ChatResult{}, err
	}
	defer s.release(owner)

	raw, err := s.completer.Complete(ctx, chatSystemPrompt, message)
	if err != nil {
		slog.ErrorContext(ctx, "Chat completion failed", "owner", owner, "error", err)
		return ChatResult{Response: ApologyMessage}, fmt.Errorf("chat completion: %w", err)
	}

	extraction, err := Extract(raw, time.Now())
	if err != nil {
		// Recoverable: the model narrated fine but the payload is unusable.
		slog.WarnContext(ctx, "Dropped unparsable transaction payload", "owner", owner, "error", err)
	}

	result := ChatResult{Response: extraction.Narrative}
	if extraction.Transaction == nil {
		return result, nil
	}

	stored, err := s.store.Insert(ctx, owner, *extraction.Transaction)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to store extracted transaction", "owner", owner, "error", err)
		return result, nil
	}

	slog.InfoContext(ctx, "Transaction added via chat",
		"owner", owner,
		"id", stored.ID,
		"type", stored.Type,
		"amount_cents", stored.Amount.Cents,
		"category", stored.Category)

	result.Response += transactionAddedNote
	result.Transaction = &stored
	return result, nil
}

// Insights summarizes the user's records and streams the model's analysis.
// The returned channel closes when the stream ends or ctx is cancelled; the
// user's in-flight slot is held until then.
func (s *Service) Insights(ctx context.Context, owner, question string) (<-chan llm.Chunk, error) {
	if err := s.acquire(owner); err != nil {
		return nil, err
	}

	txs, err := s.store.List(ctx, owner)
	if err != nil {
		s.release(owner)
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	prompt := BuildInsightPrompt(core.Summarize(txs), question)

	chunks, err := s.streamer.Stream(ctx, insightSystemPrompt, prompt)
	if err != nil {
		s.release(owner)
		slog.ErrorContext(ctx, "Insight stream failed to start", "owner", owner, "error", err)
		return nil, fmt.Errorf("start insight stream: %w", err)
	}

	out := make(chan llm.Chunk)
	go func() {
		defer s.release(owner)
		defer close(out)
		for c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Service) acquire(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[owner] {
		return ErrBusy
	}
	s.inflight[owner] = true
	return nil
}

func (s *Service) release(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, owner)
}
