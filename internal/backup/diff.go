// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/store"
)

// GetBackupDiff compares the live store with the statistics stored for a
// remote archive and returns the tables that differ.
//
// Tables whose row counts match are re-read in full and hashed the same
// way the export does. This is a full scan of every such table and can
// take as long as an export.
func (m *Manager) GetBackupDiff(ctx context.Context, remoteID string) ([]DiffRow, error) {
	meta, err := m.remote.GetMetadata(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	if !meta.HasStats() {
		return nil, ErrNoArchiveStats
	}
	return DiffTables(ctx, m.store, meta.Stats, m.cfg.PageSize)
}

// DiffTables classifies every table known locally or in remoteStats.
// A table present on one side only is missing_remote or missing_local.
// Matching tables are omitted from the result, which is sorted by table.
func DiffTables(ctx context.Context, st store.Store, remoteStats map[string]TableStat, pageSize int) ([]DiffRow, error) {
	if pageSize <= 0 {
		pageSize = DefaultConfig().PageSize
	}
	local, err := st.ListTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	names := make(map[string]struct{}, len(local)+len(remoteStats))
	for _, t := range local {
		names[t] = struct{}{}
	}
	for t := range remoteStats {
		names[t] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for t := range names {
		sorted = append(sorted, t)
	}
	sort.Strings(sorted)

	rows := make([]DiffRow, 0)
	for _, table := range sorted {
		row, err := diffTable(ctx, st, table, remoteStats, pageSize)
		if err != nil {
			return nil, err
		}
		if row.Status != DiffMatch {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func diffTable(ctx context.Context, st store.Store, table string, remoteStats map[string]TableStat, pageSize int) (DiffRow, error) {
	row := DiffRow{Table: table, Status: DiffMatch}

	coll, err := st.Collection(table)
	switch {
	case errors.Is(err, store.ErrUnknownTable):
		coll = nil
	case err != nil:
		return row, fmt.Errorf("failed to open table %s: %w", table, err)
	}
	if coll != nil {
		row.LocalCount, err = coll.Count(ctx)
		if err != nil {
			return row, fmt.Errorf("failed to count table %s: %w", table, err)
		}
	}

	remoteStat, ok := remoteStats[table]
	if !ok {
		if row.LocalCount > 0 {
			row.Status = DiffMissingRemote
		}
		return row, nil
	}
	row.RemoteCount = remoteStat.Count
	row.RemoteHash = remoteStat.Hash

	if coll == nil {
		if row.RemoteCount > 0 {
			row.Status = DiffMissingLocal
		}
		return row, nil
	}
	if row.LocalCount != row.RemoteCount {
		row.Status = DiffCountMismatch
		return row, nil
	}
	if row.LocalCount == 0 {
		return row, nil
	}

	stat, err := streamTable(ctx, coll, pageSize, nil)
	if err != nil {
		return row, fmt.Errorf("failed to hash table %s: %w", table, err)
	}
	row.LocalHash = stat.Hash
	if stat.Hash != remoteStat.Hash {
		row.Status = DiffContentMismatch
		logging.Ctx(ctx).Debug().Str("table", table).Str("local_hash", stat.Hash).Str("remote_hash", remoteStat.Hash).Msg("Table content differs")
	}
	return row, nil
}
