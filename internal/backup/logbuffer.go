// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"sync"
	"time"
)

// LogBuffer keeps the most recent progress lines.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	start   int
	size    int
}

// NewLogBuffer creates a buffer holding capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &LogBuffer{entries: make([]LogEntry, capacity)}
}

// Append adds an entry, evicting the oldest when full.
func (b *LogBuffer) Append(ts time.Time, message string) LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := LogEntry{Timestamp: ts, Message: message}
	idx := (b.start + b.size) % len(b.entries)
	b.entries[idx] = e
	if b.size < len(b.entries) {
		b.size++
	} else {
		b.start = (b.start + 1) % len(b.entries)
	}
	return e
}

// Recent returns up to limit entries, oldest first. A limit of zero or
// less returns everything buffered.
func (b *LogBuffer) Recent(limit int) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]LogEntry, n)
	first := b.start + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.entries[(first+i)%len(b.entries)]
	}
	return out
}
