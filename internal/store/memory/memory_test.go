package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"finsight/internal/core"
	"finsight/internal/store"
)

func candidate() core.Transaction {
	return core.Transaction{
		Amount:      core.Money{Cents: 2500},
		Description: "lunch",
		Category:    core.FoodAndDining,
		Type:        core.Expense,
		Date:        core.NewDate(2026, 8, 28),
	}
}

func TestInsertThenListRoundTrip(t *testing.T) {
	s := New("")
	ctx := context.Background()

	first, err := s.Insert(ctx, "alice", candidate())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.ID == "" || first.Owner != "alice" {
		t.Fatalf("id/owner not assigned: %+v", first)
	}

	second, err := s.Insert(ctx, "alice", candidate())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	txs, err := s.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	// Newest record sits at the head of the sequence.
	if txs[0].ID != second.ID || txs[1].ID != first.ID {
		t.Fatalf("unexpected order: %v", []string{txs[0].ID, txs[1].ID})
	}

	seen := 0
	for _, tx := range txs {
		if tx.ID == first.ID {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("inserted record appears %d times", seen)
	}
}

func TestInsertRejectsInvalid(t *testing.T) {
	s := New("")
	bad := candidate()
	bad.Amount.Cents = 0
	if _, err := s.Insert(context.Background(), "alice", bad); err != core.ErrInvalidAmount {
		t.Fatalf("got %v, want %v", err, core.ErrInvalidAmount)
	}
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	s := New("")
	ctx := context.Background()
	inserted, err := s.Insert(ctx, "alice", candidate())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	removed, err := s.Delete(ctx, "alice", "no-such-id")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed {
		t.Fatal("expected no-op delete")
	}

	txs, _ := s.List(ctx, "alice")
	if len(txs) != 1 || txs[0].ID != inserted.ID {
		t.Fatalf("sequence changed by no-op delete: %v", txs)
	}

	removed, err = s.Delete(ctx, "alice", inserted.ID)
	if err != nil || !removed {
		t.Fatalf("expected successful delete, got removed=%v err=%v", removed, err)
	}
	txs, _ = s.List(ctx, "alice")
	if len(txs) != 0 {
		t.Fatalf("expected empty sequence, got %d", len(txs))
	}
}

func TestOwnersAreIsolated(t *testing.T) {
	s := New("")
	ctx := context.Background()
	if _, err := s.Insert(ctx, "alice", candidate()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	txs, err := s.List(ctx, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("bob sees alice's records: %v", txs)
	}
}

func TestSnapshotPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := New(dir)
	inserted, err := s.Insert(ctx, "alice", candidate())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	reopened := New(dir)
	txs, err := reopened.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != inserted.ID {
		t.Fatalf("snapshot not reloaded: %v", txs)
	}
	if txs[0].Amount.Cents != 2500 || txs[0].Date.String() != "2026-08-28" {
		t.Fatalf("snapshot fields mangled: %+v", txs[0])
	}
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transactions_alice.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(dir)
	txs, err := s.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("expected graceful degrade, got %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected empty collection, got %d", len(txs))
	}
}

func TestSubscribeReceivesMutations(t *testing.T) {
	s := New("")
	ctx := context.Background()

	ch, cancel := s.Subscribe("alice")
	defer cancel()

	inserted, err := s.Insert(ctx, "alice", candidate())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	ev := <-ch
	if ev.Kind != store.EventInserted || ev.ID != inserted.ID || ev.Owner != "alice" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if _, err := s.Delete(ctx, "alice", inserted.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ev = <-ch
	if ev.Kind != store.EventDeleted || ev.ID != inserted.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}

	cancel()
	if _, open := <-ch; open {
		t.Fatal("channel still open after cancel")
	}
}
