// Package memory implements the record store with in-memory state and a
// JSON snapshot per owner on disk. The snapshot mirrors the persisted-state
// contract: one serialized collection per user, full overwrite on every
// mutation. After the first load the in-memory view is authoritative.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"finsight/internal/core"
	"finsight/internal/store"
)

type Store struct {
	mu       sync.Mutex
	dataDir  string
	loaded   map[string]bool
	items    map[string][]core.Transaction // owner -> most-recent-first
	notifier *store.Notifier
}

var (
	_ store.TransactionStore = (*Store)(nil)
	_ store.Watcher          = (*Store)(nil)
)

// New creates a store persisting snapshots under dataDir. An empty dataDir
// disables persistence entirely (useful in tests).
func New(dataDir string) *Store {
	return &Store{
		dataDir:  dataDir,
		loaded:   make(map[string]bool),
		items:    make(map[string][]core.Transaction),
		notifier: store.NewNotifier(),
	}
}

func (s *Store) List(ctx context.Context, owner string) ([]core.Transaction, error) {
	if owner == "" {
		return nil, store.ErrUnknownOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx, owner)

	out := make([]core.Transaction, len(s.items[owner]))
	copy(out, s.items[owner])
	return out, nil
}

func (s *Store) Insert(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error) {
	if owner == "" {
		return core.Transaction{}, store.ErrUnknownOwner
	}
	t.ID = uuid.NewString()
	t.Owner = owner
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx, owner)

	s.items[owner] = append([]core.Transaction{t}, s.items[owner]...)
	if err := s.persistLocked(ctx, owner); err != nil {
		// In-memory and persisted views may now diverge; accepted risk,
		// the in-memory state stays authoritative.
		slog.WarnContext(ctx, "Snapshot write failed after insert", "owner", owner, "error", err)
	}

	s.notifier.Publish(store.Event{Owner: owner, Kind: store.EventInserted, ID: t.ID})
	return t, nil
}

func (s *Store) Delete(ctx context.Context, owner string, id string) (bool, error) {
	if owner == "" {
		return false, store.ErrUnknownOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx, owner)

	txs := s.items[owner]
	idx := -1
	for i, t := range txs {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	s.items[owner] = append(txs[:idx:idx], txs[idx+1:]...)
	if err := s.persistLocked(ctx, owner); err != nil {
		slog.WarnContext(ctx, "Snapshot write failed after delete", "owner", owner, "error", err)
	}

	s.notifier.Publish(store.Event{Owner: owner, Kind: store.EventDeleted, ID: id})
	return true, nil
}

func (s *Store) Subscribe(owner string) (<-chan store.Event, func()) {
	return s.notifier.Subscribe(owner)
}

// snapshot is the on-disk record shape.
type snapshot struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Date        string  `json:"date"`
	Owner       string  `json:"owner"`
}

// loadLocked reads the owner's snapshot on first access. A missing or
// unreadable file degrades to an empty initial collection.
func (s *Store) loadLocked(ctx context.Context, owner string) {
	if s.loaded[owner] {
		return
	}
	s.loaded[owner] = true
	if s.dataDir == "" {
		return
	}

	data, err := os.ReadFile(s.snapshotPath(owner))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.WarnContext(ctx, "Snapshot unreadable, starting empty", "owner", owner, "error", err)
		}
		return
	}

	var rows []snapshot
	if err := json.Unmarshal(data, &rows); err != nil {
		slog.WarnContext(ctx, "Snapshot corrupted, starting empty", "owner", owner, "error", err)
		return
	}

	txs := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		date, err := core.ParseDate(r.Date)
		if err != nil {
			slog.WarnContext(ctx, "Skipping snapshot row with bad date", "owner", owner, "id", r.ID, "date", r.Date)
			continue
		}
		txs = append(txs, core.Transaction{
			ID:          r.ID,
			Amount:      core.MoneyFromFloat(r.Amount),
			Description: r.Description,
			Category:    core.Category(r.Category),
			Type:        core.TxType(r.Type),
			Date:        date,
			Owner:       owner,
		})
	}
	s.items[owner] = txs
}

// persistLocked rewrites the owner's full collection.
func (s *Store) persistLocked(ctx context.Context, owner string) error {
	if s.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	txs := s.items[owner]
	rows := make([]snapshot, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, snapshot{
			ID:          t.ID,
			Amount:      t.Amount.Dollars(),
			Description: t.Description,
			Category:    string(t.Category),
			Type:        string(t.Type),
			Date:        t.Date.String(),
			Owner:       t.Owner,
		})
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	path := s.snapshotPath(owner)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *Store) snapshotPath(owner string) string {
	return filepath.Join(s.dataDir, "transactions_"+sanitizeOwner(owner)+".json")
}

// sanitizeOwner keeps the snapshot filename safe for arbitrary identifiers.
func sanitizeOwner(owner string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, owner)
}
