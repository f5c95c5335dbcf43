// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/tablesnap/internal/logging"
)

// SQLStore exposes a database/sql database as a Store.
//
// The collection registry is rebuilt from the catalog on every
// ListTableNames call, so tables created after startup are picked up by the
// next backup. Collection only ever consults the registry.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	ownsDB  bool

	mu          sync.RWMutex
	names       []string
	collections map[string]*sqlCollection
}

// Open opens dsn with the given driver and loads the collection registry.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	dialect, err := LookupDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Engine, err)
	}
	if err := db.PingContext(ctx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect.Engine, err)
	}

	s, err := NewSQLStore(ctx, db, driver)
	if err != nil {
		closeQuietly(db)
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLStore wraps an already open database. The caller keeps ownership
// of db.
func NewSQLStore(ctx context.Context, db *sql.DB, driver string) (*SQLStore, error) {
	dialect, err := LookupDialect(driver)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db, dialect: dialect}
	if _, err := s.ListTableNames(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Engine returns the dialect's engine tag.
func (s *SQLStore) Engine() string {
	return s.dialect.Engine
}

// ListTableNames reads the catalog, rebuilds the registry and returns the
// sorted table names.
func (s *SQLStore) ListTableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.ListTables)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	sort.Strings(names)

	collections := make(map[string]*sqlCollection, len(names))
	for _, name := range names {
		orderBy, err := s.keyOrder(ctx, name)
		if err != nil {
			return nil, err
		}
		collections[name] = &sqlCollection{db: s.db, dialect: s.dialect, table: name, orderBy: orderBy}
	}

	s.mu.Lock()
	s.names = names
	s.collections = collections
	s.mu.Unlock()

	out := make([]string, len(names))
	copy(out, names)
	return out, nil
}

// keyOrder returns the primary key ORDER BY list for tables the dialect
// cannot page by OrderKey, or "" to use OrderKey.
func (s *SQLStore) keyOrder(ctx context.Context, table string) (string, error) {
	if s.dialect.KeyColumns == "" {
		return "", nil
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.KeyColumns, table)
	if err != nil {
		return "", fmt.Errorf("failed to read key columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return "", fmt.Errorf("failed to scan key column of %s: %w", table, err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read key columns of %s: %w", table, err)
	}
	if len(columns) == 0 {
		return "", nil
	}
	return orderByColumns(columns), nil
}

// Collection returns the registered accessor for name.
func (s *SQLStore) Collection(name string) (Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, unknownTable(name)
	}
	return c, nil
}

// Close closes the database if Open created it.
func (s *SQLStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

type sqlCollection struct {
	db      *sql.DB
	dialect Dialect
	table   string

	// orderBy overrides dialect.OrderKey when set.
	orderBy string
}

func (c *sqlCollection) FetchPage(ctx context.Context, offset, limit int) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.pageQuery(c.table, c.orderBy, offset, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", c.table, err)
	}

	records := make([]Record, 0, limit)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", c.table, err)
		}
		records = append(records, Record{columns: columns, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows of %s: %w", c.table, err)
	}
	return records, nil
}

func (c *sqlCollection) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, c.dialect.countQuery(c.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.table, err)
	}
	return n, nil
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close database")
	}
}
