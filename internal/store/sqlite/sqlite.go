// Package sqlite implements the record store on an embedded SQLite
// database, with schema migrations applied at startup.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"finsight/internal/core"
	"finsight/internal/store"
)

type Repository struct {
	db       *sql.DB
	queries  *Queries
	notifier *store.Notifier
}

var (
	_ store.TransactionStore = (*Repository)(nil)
	_ store.Watcher          = (*Repository)(nil)
)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:       db,
		queries:  New(db),
		notifier: store.NewNotifier(),
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) List(ctx context.Context, owner string) ([]core.Transaction, error) {
	if owner == "" {
		return nil, store.ErrUnknownOwner
	}
	rows, err := r.queries.ListTransactionsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txs := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := rowToTransaction(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable row", "id", row.ID, "error", err)
			continue
		}
		txs = append(txs, t)
	}
	return txs, nil
}

func (r *Repository) Insert(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error) {
	if owner == "" {
		return core.Transaction{}, store.ErrUnknownOwner
	}
	t.ID = uuid.NewString()
	t.Owner = owner
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		ID:          t.ID,
		Owner:       t.Owner,
		AmountCents: t.Amount.Cents,
		Description: t.Description,
		Category:    string(t.Category),
		Type:        string(t.Type),
		Date:        t.Date.String(),
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"owner", t.Owner,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"category", t.Category)

	r.notifier.Publish(store.Event{Owner: owner, Kind: store.EventInserted, ID: t.ID})
	return t, nil
}

func (r *Repository) Delete(ctx context.Context, owner string, id string) (bool, error) {
	if owner == "" {
		return false, store.ErrUnknownOwner
	}
	affected, err := r.queries.DeleteTransaction(ctx, id, owner)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	r.notifier.Publish(store.Event{Owner: owner, Kind: store.EventDeleted, ID: id})
	return true, nil
}

func (r *Repository) Subscribe(owner string) (<-chan store.Event, func()) {
	return r.notifier.Subscribe(owner)
}

// Get retrieves one transaction regardless of owner; used by the export
// worker which processes events across all users.
func (r *Repository) Get(ctx context.Context, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, err
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return rowToTransaction(row)
}

// PendingExport returns transactions not yet mirrored to the spreadsheet.
func (r *Repository) PendingExport(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.queries.GetPendingExport(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending export: %w", err)
	}
	txs := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := rowToTransaction(row)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable row", "id", row.ID, "error", err)
			continue
		}
		txs = append(txs, t)
	}
	return txs, nil
}

func (r *Repository) MarkExported(ctx context.Context, id string) error {
	if err := r.queries.MarkExported(ctx, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	return nil
}

func (r *Repository) MarkExportError(ctx context.Context, id string) error {
	if err := r.queries.MarkExportError(ctx, id); err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with export error", "id", id)
	return nil
}

func rowToTransaction(row Row) (core.Transaction, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", row.Date, err)
	}
	return core.Transaction{
		ID:          row.ID,
		Amount:      core.Money{Cents: row.AmountCents},
		Description: row.Description,
		Category:    core.Category(row.Category),
		Type:        core.TxType(row.Type),
		Date:        date,
		Owner:       row.Owner,
	}, nil
}
