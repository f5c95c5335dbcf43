// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

// Package store abstracts the relational database being backed up as an
// enumerable set of named collections. Each collection is paged with
// offset/limit in a stable order and can be counted.
//
// Collections are resolved through an explicit registry built from the
// database catalog (SQLStore) or from registered tables (MemoryStore).
// Asking for a name that is not in the registry returns ErrUnknownTable.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTable is returned when a collection is not in the registry.
var ErrUnknownTable = errors.New("unknown table")

// Collection is a single named table.
type Collection interface {
	// FetchPage returns up to limit records starting at offset, in the
	// same order on every call for unchanged data.
	FetchPage(ctx context.Context, offset, limit int) ([]Record, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int64, error)
}

// Store is the relational store being backed up.
type Store interface {
	// ListTableNames returns every collection name, sorted ascending.
	ListTableNames(ctx context.Context) ([]string, error)

	// Collection returns the accessor registered for name.
	Collection(name string) (Collection, error)

	// Engine identifies the backing database, e.g. "duckdb".
	Engine() string
}

func unknownTable(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownTable, name)
}
