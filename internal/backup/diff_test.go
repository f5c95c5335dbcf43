// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tomtom215/tablesnap/internal/remote"
	"github.com/tomtom215/tablesnap/internal/store"
)

func tableOf(n int, label string) []store.Record {
	recs := make([]store.Record, n)
	for i := range recs {
		recs[i] = store.NewRecord([]string{"id", "label"}, []any{int64(i), fmt.Sprintf("%s-%d", label, i)})
	}
	return recs
}

func statsOf(t *testing.T, st store.Store, table string) TableStat {
	t.Helper()
	coll, err := st.Collection(table)
	if err != nil {
		t.Fatal(err)
	}
	stat, err := streamTable(context.Background(), coll, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	return stat
}

func TestDiffTables(t *testing.T) {
	original := store.NewMemoryStore("sqlite")
	original.Insert("same", tableOf(10, "x")...)
	original.Insert("edited", tableOf(10, "x")...)
	original.Insert("grown", tableOf(4, "x")...)
	original.Insert("dropped", tableOf(2, "x")...)
	original.Insert("truncated", tableOf(3, "x")...)

	remoteStats := map[string]TableStat{}
	for _, table := range []string{"same", "edited", "grown", "dropped", "truncated"} {
		remoteStats[table] = statsOf(t, original, table)
	}

	live := store.NewMemoryStore("sqlite")
	live.Insert("same", tableOf(10, "x")...)
	live.Insert("edited", tableOf(10, "y")...)
	live.Insert("grown", tableOf(6, "x")...)
	live.Insert("added", tableOf(1, "x")...)
	live.CreateTable("empty")
	live.CreateTable("truncated")

	rows, err := DiffTables(context.Background(), live, remoteStats, 4)
	if err != nil {
		t.Fatalf("DiffTables() error = %v", err)
	}

	want := map[string]DiffStatus{
		"added":     DiffMissingRemote,
		"dropped":   DiffMissingLocal,
		"edited":    DiffContentMismatch,
		"grown":     DiffCountMismatch,
		"truncated": DiffCountMismatch,
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v, want %d rows", rows, len(want))
	}
	for i, row := range rows {
		if i > 0 && rows[i-1].Table >= row.Table {
			t.Errorf("rows not sorted: %+v", rows)
		}
		if row.Status != want[row.Table] {
			t.Errorf("%s: status = %s, want %s", row.Table, row.Status, want[row.Table])
		}
	}

	for _, row := range rows {
		switch row.Table {
		case "edited":
			if row.LocalCount != 10 || row.RemoteCount != 10 || row.LocalHash == row.RemoteHash {
				t.Errorf("edited row = %+v", row)
			}
		case "grown":
			if row.LocalHash != "" {
				t.Error("count mismatch should not hash the table")
			}
		case "dropped":
			if row.LocalCount != 0 || row.RemoteCount != 2 {
				t.Errorf("dropped row = %+v", row)
			}
		case "truncated":
			if row.LocalCount != 0 || row.RemoteCount != 3 {
				t.Errorf("truncated row = %+v", row)
			}
		}
	}
}

func TestGetBackupDiff(t *testing.T) {
	rs := newFakeRemote()
	st := newTestStore(3)
	m := newTestManager(t, st, rs)

	job, err := m.StartBackup(JobTypeFull)
	if err != nil {
		t.Fatal(err)
	}
	final := waitForJob(t, m, job.ID)

	rows, err := m.GetBackupDiff(context.Background(), final.Result.RemoteID)
	if err != nil {
		t.Fatalf("GetBackupDiff() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("unchanged store reported %+v", rows)
	}

	st.Insert("users", store.NewRecord([]string{"id", "name"}, []any{int64(9), "new"}))
	rows, err = m.GetBackupDiff(context.Background(), final.Result.RemoteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Table != "users" || rows[0].Status != DiffCountMismatch {
		t.Errorf("rows = %+v", rows)
	}
}

func TestGetBackupDiffErrors(t *testing.T) {
	rs := newFakeRemote()
	rs.metadata["legacy"] = &remote.ArchiveMetadata{CustomChecksum: "abc"}
	m := newTestManager(t, newTestStore(1), rs)

	if _, err := m.GetBackupDiff(context.Background(), "legacy"); !errors.Is(err, ErrNoArchiveStats) {
		t.Errorf("legacy archive error = %v, want ErrNoArchiveStats", err)
	}
	_, err := m.GetBackupDiff(context.Background(), "missing")
	if !remote.IsNotFound(err) {
		t.Errorf("missing archive error = %v, want 404", err)
	}
}
