package assist

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"finsight/internal/core"
	"finsight/internal/llm"
	"finsight/internal/store/memory"
)

type fakeModel struct {
	reply   string
	err     error
	chunks  []string
	started chan struct{} // closed when Stream is first called, if set
	block   chan struct{} // Stream output waits on this, if set
}

func (f *fakeModel) Complete(_ context.Context, _, _ string) (string, error) {
	return f.reply, f.err
}

func (f *fakeModel) Stream(ctx context.Context, _, _ string) (<-chan llm.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		if f.block != nil {
			<-f.block
		}
		for _, c := range f.chunks {
			select {
			case out <- llm.Chunk{Text: c}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func TestChatStoresExtractedTransaction(t *testing.T) {
	st := memory.New("")
	model := &fakeModel{
		reply: "Added your lunch.\nTRANSACTION_DATA: {\"amount\":25,\"description\":\"lunch\",\"category\":\"Food & Dining\",\"type\":\"expense\"}",
	}
	svc := NewService(st, model, model)

	res, err := svc.Chat(context.Background(), "alice", "I spent $25 on lunch")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.HasPrefix(res.Response, "Added your lunch.") {
		t.Fatalf("narrative: got %q", res.Response)
	}
	if !strings.Contains(res.Response, "Transaction added successfully") {
		t.Fatalf("confirmation missing: %q", res.Response)
	}
	if res.Transaction == nil || res.Transaction.ID == "" {
		t.Fatalf("expected stored transaction, got %+v", res.Transaction)
	}

	txs, _ := st.List(context.Background(), "alice")
	if len(txs) != 1 || txs[0].Amount.Cents != 2500 {
		t.Fatalf("not persisted: %v", txs)
	}
}

func TestChatKeepsNarrativeOnBadPayload(t *testing.T) {
	st := memory.New("")
	model := &fakeModel{reply: "Noted.\nTRANSACTION_DATA: {broken"}
	svc := NewService(st, model, model)

	res, err := svc.Chat(context.Background(), "alice", "scribble")
	if err != nil {
		t.Fatalf("bad payload must be recoverable, got %v", err)
	}
	if res.Response != "Noted." {
		t.Fatalf("narrative: got %q", res.Response)
	}
	if res.Transaction != nil {
		t.Fatal("transaction should be dropped")
	}
	txs, _ := st.List(context.Background(), "alice")
	if len(txs) != 0 {
		t.Fatalf("nothing should be stored: %v", txs)
	}
}

func TestChatTransportFailureReturnsApology(t *testing.T) {
	st := memory.New("")
	model := &fakeModel{err: errors.New("connection refused")}
	svc := NewService(st, model, model)

	res, err := svc.Chat(context.Background(), "alice", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Response != ApologyMessage {
		t.Fatalf("got %q", res.Response)
	}
}

func TestInsightsStreamsChunks(t *testing.T) {
	st := memory.New("")
	model := &fakeModel{chunks: []string{"Your ", "spending ", "looks fine."}}
	svc := NewService(st, model, model)

	ch, err := svc.Insights(context.Background(), "alice", "")
	if err != nil {
		t.Fatalf("insights: %v", err)
	}

	var b strings.Builder
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("chunk error: %v", c.Err)
		}
		b.WriteString(c.Text)
	}
	if b.String() != "Your spending looks fine." {
		t.Fatalf("got %q", b.String())
	}
}

func TestInsightsRejectsDuplicateInFlight(t *testing.T) {
	st := memory.New("")
	started := make(chan struct{})
	block := make(chan struct{})
	model := &fakeModel{chunks: []string{"slow"}, started: started, block: block}
	svc := NewService(st, model, model)

	ch, err := svc.Insights(context.Background(), "alice", "")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	<-started

	if _, err := svc.Insights(context.Background(), "alice", ""); err != ErrBusy {
		t.Fatalf("duplicate: got %v, want ErrBusy", err)
	}

	// A different user is not affected by alice's in-flight request.
	if _, err := svc.Chat(context.Background(), "bob", "hi"); err != nil {
		t.Fatalf("other owner blocked: %v", err)
	}

	close(block)
	for range ch {
	}

	// Slot released once the stream drains.
	deadline := time.After(2 * time.Second)
	for {
		ch2, err := svc.Insights(context.Background(), "alice", "")
		if err == nil {
			for range ch2 {
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("slot never released: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestInsightsCancelDetaches(t *testing.T) {
	st := memory.New("")
	if _, err := st.Insert(context.Background(), "alice", core.Transaction{
		Amount: core.Money{Cents: 100}, Description: "x",
		Category: core.Other, Type: core.Expense, Date: core.NewDate(2026, 8, 1),
	}); err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{chunks: []string{"a", "b", "c", "d"}}
	svc := NewService(st, model, model)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := svc.Insights(ctx, "alice", "")
	if err != nil {
		t.Fatalf("insights: %v", err)
	}

	<-ch
	cancel()

	// The channel closes without delivering the remaining chunks forever.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancel")
		}
	}
}
