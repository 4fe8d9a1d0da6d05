// Package store defines the record-store port: per-user transaction
// persistence plus a change-notification interface for interested readers.
package store

import (
	"context"
	"errors"

	"finsight/internal/core"
)

var (
	// ErrUnknownOwner is returned when an operation names an empty owner.
	ErrUnknownOwner = errors.New("unknown owner")
)

type EventKind string

const (
	EventInserted EventKind = "inserted"
	EventDeleted  EventKind = "deleted"
)

// Event describes one mutation of a user's record collection.
type Event struct {
	Owner string
	Kind  EventKind
	ID    string
}

// TransactionStore is the repository port. Every call takes the owner
// identifier explicitly; there is no ambient per-user state.
type (
	TransactionStore interface {
		// List returns the owner's transactions most-recent-first.
		List(ctx context.Context, owner string) ([]core.Transaction, error)

		// Insert validates the candidate, assigns id and owner, prepends it
		// to the owner's sequence and persists the updated collection.
		Insert(ctx context.Context, owner string, t core.Transaction) (core.Transaction, error)

		// Delete removes the matching record. It reports false without error
		// when no record matches.
		Delete(ctx context.Context, owner string, id string) (bool, error)
	}

	// Watcher lets components observe mutations without polling. The cancel
	// function detaches the subscription; no events are delivered after it
	// returns.
	Watcher interface {
		Subscribe(owner string) (<-chan Event, func())
	}
)
