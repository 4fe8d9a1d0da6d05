package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// Queries wraps the raw SQL statements used by the repository.
type Queries struct {
	db *sql.DB
}

func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Row is the database shape of one transaction record.
type Row struct {
	ID          string
	Owner       string
	AmountCents int64
	Description string
	Category    string
	Type        string
	Date        string
	CreatedAt   time.Time
}

const createTransaction = `
INSERT INTO transactions (id, owner, amount_cents, description, category, type, date)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type CreateTransactionParams struct {
	ID          string
	Owner       string
	AmountCents int64
	Description string
	Category    string
	Type        string
	Date        string
}

func (q *Queries) CreateTransaction(ctx context.Context, p CreateTransactionParams) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		p.ID, p.Owner, p.AmountCents, p.Description, p.Category, p.Type, p.Date)
	return err
}

const listTransactionsByOwner = `
SELECT id, owner, amount_cents, description, category, type, date, created_at
FROM transactions
WHERE owner = ?
ORDER BY created_at DESC, rowid DESC
`

func (q *Queries) ListTransactionsByOwner(ctx context.Context, owner string) ([]Row, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByOwner, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Owner, &r.AmountCents, &r.Description,
			&r.Category, &r.Type, &r.Date, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const deleteTransaction = `
DELETE FROM transactions WHERE id = ? AND owner = ?
`

func (q *Queries) DeleteTransaction(ctx context.Context, id, owner string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id, owner)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getTransaction = `
SELECT id, owner, amount_cents, description, category, type, date, created_at
FROM transactions
WHERE id = ?
`

func (q *Queries) GetTransaction(ctx context.Context, id string) (Row, error) {
	var r Row
	err := q.db.QueryRowContext(ctx, getTransaction, id).Scan(&r.ID, &r.Owner,
		&r.AmountCents, &r.Description, &r.Category, &r.Type, &r.Date, &r.CreatedAt)
	return r, err
}

const getPendingExport = `
SELECT id, owner, amount_cents, description, category, type, date, created_at
FROM transactions
WHERE exported = 0 AND export_error = 0
ORDER BY created_at ASC
LIMIT ?
`

func (q *Queries) GetPendingExport(ctx context.Context, limit int64) ([]Row, error) {
	rows, err := q.db.QueryContext(ctx, getPendingExport, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Owner, &r.AmountCents, &r.Description,
			&r.Category, &r.Type, &r.Date, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const markExported = `
UPDATE transactions SET exported = 1, export_error = 0 WHERE id = ?
`

func (q *Queries) MarkExported(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markExported, id)
	return err
}

const markExportError = `
UPDATE transactions SET export_error = 1 WHERE id = ?
`

func (q *Queries) MarkExportError(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markExportError, id)
	return err
}
