// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

/*
export.go - Export Writer

Streams every table of the store into a single JSON document:

	{"version":"1.0","createdAt":...,"engine":...,"tables":[...],"data":{"t1":[...],"t2":[...]}}

The header is marshaled as a normal object and its closing brace is
replaced with `,"data":{` so the data section can be streamed after it.

Each table is first streamed into a spill file next to the output. A read
failure part way through a table discards the spill and the table is
written as []; records already read never reach the document. Write
failures on either file abort the export.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/metrics"
	"github.com/tomtom215/tablesnap/internal/store"
)

// FormatVersion is written into every archive header.
const FormatVersion = "1.0"

// createdAtLayout is ISO 8601 in UTC with millisecond precision.
const createdAtLayout = "2006-01-02T15:04:05.000Z"

// archiveHeader is the fixed part of the document. Field order is the
// serialized order.
type archiveHeader struct {
	Version   string   `json:"version"`
	CreatedAt string   `json:"createdAt"`
	Engine    string   `json:"engine"`
	Tables    []string `json:"tables"`
}

// ExportResult summarizes a finished export.
type ExportResult struct {
	// Tables lists the tables that contained at least one record.
	Tables []string
	Stats  map[string]TableStat
	Rows   int64
}

// Exporter is the Export Writer.
type Exporter struct {
	store    store.Store
	engine   string
	pageSize int
	now      func() time.Time
}

// NewExporter creates an exporter reading pageSize records per fetch.
func NewExporter(st store.Store, engine string, pageSize int) *Exporter {
	if pageSize <= 0 {
		pageSize = DefaultConfig().PageSize
	}
	if engine == "" {
		engine = st.Engine()
	}
	return &Exporter{store: st, engine: engine, pageSize: pageSize, now: time.Now}
}

// writeError marks a failure of the output, as opposed to the store.
type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// Export writes the document for tables to path. Tables are written in the
// given order and every name appears in the header. progress may be nil.
func (e *Exporter) Export(ctx context.Context, path string, tables []string, progress ProgressFunc) (result *ExportResult, err error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // path is inside the work directory
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()       //nolint:errcheck,gosec // already failing
			os.Remove(path) //nolint:errcheck,gosec // best effort
		}
	}()

	w := bufio.NewWriterSize(f, 256*1024)
	if err := e.writeHeader(w, tables); err != nil {
		return nil, err
	}

	result = &ExportResult{Tables: make([]string, 0, len(tables)), Stats: make(map[string]TableStat)}
	for i, table := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(Progress{
			Step:    StepExport,
			Percent: exportPercent(i, len(tables)),
			Message: fmt.Sprintf("Exporting table %s (%d/%d)", table, i+1, len(tables)),
		})

		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return nil, fmt.Errorf("failed to write export: %w", err)
			}
		}
		name, err := json.Marshal(table)
		if err != nil {
			return nil, fmt.Errorf("failed to encode table name: %w", err)
		}
		if _, err := w.Write(append(name, ':')); err != nil {
			return nil, fmt.Errorf("failed to write export: %w", err)
		}

		stat, err := e.writeTable(ctx, w, filepath.Dir(path), table)
		if err != nil {
			return nil, err
		}
		if stat.Count > 0 {
			result.Tables = append(result.Tables, table)
			result.Stats[table] = stat
			result.Rows += stat.Count
		}
	}

	if _, err := w.WriteString("}}"); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync export: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close export: %w", err)
	}

	progress(Progress{Step: StepExport, Percent: exportPercent(len(tables), len(tables)), Message: fmt.Sprintf("Exported %d records from %d tables", result.Rows, len(result.Tables))})
	return result, nil
}

func (e *Exporter) writeHeader(w io.Writer, tables []string) error {
	if tables == nil {
		tables = []string{}
	}
	header, err := json.Marshal(archiveHeader{
		Version:   FormatVersion,
		CreatedAt: e.now().UTC().Format(createdAtLayout),
		Engine:    e.engine,
		Tables:    tables,
	})
	if err != nil {
		return fmt.Errorf("failed to encode archive header: %w", err)
	}
	header = append(header[:len(header)-1], `,"data":{`...)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write archive header: %w", err)
	}
	return nil
}

// writeTable streams one table as a JSON array. Store failures degrade
// the table to [] and are not returned.
func (e *Exporter) writeTable(ctx context.Context, w io.Writer, dir, table string) (TableStat, error) {
	log := logging.Ctx(ctx).With().Str("table", table).Logger()

	coll, err := e.store.Collection(table)
	if err != nil {
		log.Warn().Err(err).Msg("Table not readable, exporting as empty")
		metrics.ExportTableFailures.WithLabelValues(table).Inc()
		return TableStat{}, writeEmpty(w)
	}

	spill, err := os.CreateTemp(dir, ".table-*.json")
	if err != nil {
		return TableStat{}, fmt.Errorf("failed to create spill file: %w", err)
	}
	defer func() {
		spill.Close()           //nolint:errcheck,gosec // read-only by now
		os.Remove(spill.Name()) //nolint:errcheck,gosec // best effort
	}()

	sw := bufio.NewWriter(spill)
	if err := sw.WriteByte('['); err != nil {
		return TableStat{}, fmt.Errorf("failed to write spill file: %w", err)
	}
	stat, err := streamTable(ctx, coll, e.pageSize, func(n int64, rec []byte) error {
		if n > 0 {
			if err := sw.WriteByte(','); err != nil {
				return err
			}
		}
		_, err := sw.Write(rec)
		return err
	})
	if err != nil {
		var wErr *writeError
		if errors.As(err, &wErr) {
			return TableStat{}, fmt.Errorf("failed to write spill file: %w", wErr.err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TableStat{}, ctxErr
		}
		log.Warn().Err(err).Int64("rows_read", stat.Count).Msg("Table read failed, exporting as empty")
		metrics.ExportTableFailures.WithLabelValues(table).Inc()
		return TableStat{}, writeEmpty(w)
	}
	if stat.Count == 0 {
		log.Warn().Msg("Table is empty")
		return TableStat{}, writeEmpty(w)
	}

	if err := sw.WriteByte(']'); err != nil {
		return TableStat{}, fmt.Errorf("failed to write spill file: %w", err)
	}
	if err := sw.Flush(); err != nil {
		return TableStat{}, fmt.Errorf("failed to flush spill file: %w", err)
	}
	if _, err := spill.Seek(0, io.SeekStart); err != nil {
		return TableStat{}, fmt.Errorf("failed to rewind spill file: %w", err)
	}
	if _, err := io.Copy(w, spill); err != nil {
		return TableStat{}, fmt.Errorf("failed to write export: %w", err)
	}

	metrics.ExportRowsTotal.WithLabelValues(table).Add(float64(stat.Count))
	log.Debug().Int64("rows", stat.Count).Str("hash", stat.Hash).Msg("Table exported")
	return stat, nil
}

func writeEmpty(w io.Writer) error {
	if _, err := io.WriteString(w, "[]"); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// streamTable pages through coll, calling visit with each serialized
// record, and returns the record count and the sha256 of the concatenated
// record bytes. Errors from visit are returned as *writeError. On a store
// error the partial count is returned with the error.
func streamTable(ctx context.Context, coll store.Collection, pageSize int, visit func(n int64, rec []byte) error) (TableStat, error) {
	hasher := sha256.New()
	var count int64

	for offset := 0; ; offset += pageSize {
		page, err := coll.FetchPage(ctx, offset, pageSize)
		if err != nil {
			return TableStat{Count: count}, fmt.Errorf("failed to fetch records at offset %d: %w", offset, err)
		}
		for _, rec := range page {
			data, err := rec.MarshalJSON()
			if err != nil {
				return TableStat{Count: count}, fmt.Errorf("failed to encode record %d: %w", count, err)
			}
			hasher.Write(data)
			if visit != nil {
				if err := visit(count, data); err != nil {
					return TableStat{Count: count}, &writeError{err: err}
				}
			}
			count++
		}
		runtime.Gosched()
		if len(page) < pageSize {
			break
		}
	}

	if count == 0 {
		return TableStat{}, nil
	}
	return TableStat{Count: count, Hash: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// exportPercent maps table progress onto the 0-70 band of the job.
func exportPercent(done, total int) int {
	if total == 0 {
		return 70
	}
	return done * 70 / total
}
