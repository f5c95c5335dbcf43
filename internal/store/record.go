// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package store

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// MaxSafeInteger is the largest integer an IEEE-754 double represents
// exactly. Integers beyond ±MaxSafeInteger are written as decimal strings.
const MaxSafeInteger = 1<<53 - 1

// Record is one row with its columns kept in database order, so that its
// JSON form is byte-stable across runs.
type Record struct {
	columns []string
	values  []any
}

// NewRecord pairs columns with values. Extra values are dropped and
// missing values are null.
func NewRecord(columns []string, values []any) Record {
	v := make([]any, len(columns))
	copy(v, values)
	return Record{columns: columns, values: v}
}

// Columns returns the column names in order.
func (r Record) Columns() []string { return r.columns }

// Get returns the value of col.
func (r Record) Get(col string) (any, bool) {
	for i, c := range r.columns {
		if c == col {
			return r.values[i], true
		}
	}
	return nil, false
}

// MarshalJSON writes the record as an object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, fmt.Errorf("failed to encode column name %q: %w", col, err)
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(Normalize(r.values[i]))
		if err != nil {
			return nil, fmt.Errorf("failed to encode column %q: %w", col, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Normalize converts a driver value into something that encodes to JSON
// without loss: wide integers become decimal strings, valid UTF-8 byte
// slices become strings, non-finite floats become strings and times are
// normalized to UTC.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int8, int16, int32, uint8, uint16, uint32, float32:
		return x
	case int:
		return normalizeInt64(int64(x))
	case int64:
		return normalizeInt64(x)
	case uint:
		return normalizeUint64(uint64(x))
	case uint64:
		return normalizeUint64(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
		return x
	case *big.Int:
		if x == nil {
			return nil
		}
		if x.IsInt64() {
			return normalizeInt64(x.Int64())
		}
		return x.String()
	case big.Int:
		return Normalize(&x)
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return x
	case time.Time:
		return x.UTC()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = Normalize(e)
		}
		return out
	case fmt.Stringer:
		return x.String()
	default:
		return x
	}
}

func normalizeInt64(n int64) any {
	if n > MaxSafeInteger || n < -MaxSafeInteger {
		return strconv.FormatInt(n, 10)
	}
	return n
}

func normalizeUint64(n uint64) any {
	if n > MaxSafeInteger {
		return strconv.FormatUint(n, 10)
	}
	return n
}
