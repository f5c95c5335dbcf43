// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package store

import (
	"fmt"
	"sort"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect describes how to read the catalog and page a table for one
// database/sql driver.
type Dialect struct {
	// Driver is the database/sql driver name.
	Driver string

	// Engine is the tag written into archive headers.
	Engine string

	// ListTables returns base table names, one column, sorted.
	ListTables string

	// OrderKey orders rows stably for offset paging.
	OrderKey string

	// KeyColumns, when set, returns the primary key columns, in key order,
	// of a table that has no OrderKey (SQLite WITHOUT ROWID tables). It takes
	// the table name as its only argument and returns no rows otherwise.
	KeyColumns string
}

var dialects = map[string]Dialect{
	"duckdb": {
		Driver: "duckdb",
		Engine: "duckdb",
		ListTables: `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			ORDER BY table_name`,
		OrderKey: "rowid",
	},
	"sqlite": {
		Driver: "sqlite",
		Engine: "sqlite",
		ListTables: `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`,
		OrderKey: "rowid",
		KeyColumns: `SELECT p.name FROM pragma_table_info(?1) AS p
			WHERE p.pk > 0 AND EXISTS (
				SELECT 1 FROM sqlite_master AS m
				WHERE m.type = 'table' AND m.name = ?1 AND upper(m.sql) LIKE '%WITHOUT ROWID%')
			ORDER BY p.pk`,
	},
	"pgx": {
		Driver: "pgx",
		Engine: "postgres",
		ListTables: `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			ORDER BY table_name`,
		OrderKey: "ctid",
	},
}

// LookupDialect returns the dialect registered for a driver name.
func LookupDialect(driver string) (Dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		names := make([]string, 0, len(dialects))
		for n := range dialects {
			names = append(names, n)
		}
		sort.Strings(names)
		return Dialect{}, fmt.Errorf("unsupported driver %q (supported: %s)", driver, strings.Join(names, ", "))
	}
	return d, nil
}

func (d Dialect) pageQuery(table, orderBy string, offset, limit int) string {
	if orderBy == "" {
		orderBy = d.OrderKey
	}
	return fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %d OFFSET %d",
		quoteIdent(table), orderBy, limit, offset)
}

// orderByColumns renders an ORDER BY list of quoted columns.
func orderByColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func (d Dialect) countQuery(table string) string {
	return "SELECT COUNT(*) FROM " + quoteIdent(table)
}

// quoteIdent quotes an identifier with ANSI double quotes. All three
// supported engines accept this form.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
