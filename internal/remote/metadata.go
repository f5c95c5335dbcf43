// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package remote

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Property keys stored on every archive object.
const (
	PropCustomChecksum = "custom-checksum"
	PropTableCount     = "table-count"
)

// TableStat is the row count and content hash of one exported table.
type TableStat struct {
	Count int64  `json:"count"`
	Hash  string `json:"hash"`
}

// ArchiveMetadata is stored with each uploaded archive so that dedup and
// diff never need to download it. Archives uploaded by older releases may
// have no Stats.
type ArchiveMetadata struct {
	Tables         []string             `json:"tables,omitempty"`
	Stats          map[string]TableStat `json:"stats,omitempty"`
	CustomChecksum string               `json:"customChecksum,omitempty"`
}

// HasStats reports whether per-table statistics are present.
func (m *ArchiveMetadata) HasStats() bool {
	return m != nil && m.Stats != nil
}

// clone returns a deep copy. A nil Stats map stays nil.
func (m *ArchiveMetadata) clone() *ArchiveMetadata {
	out := &ArchiveMetadata{CustomChecksum: m.CustomChecksum}
	if m.Tables != nil {
		out.Tables = append([]string(nil), m.Tables...)
	}
	if m.Stats != nil {
		out.Stats = make(map[string]TableStat, len(m.Stats))
		for k, v := range m.Stats {
			out.Stats[k] = v
		}
	}
	return out
}

func (m ArchiveMetadata) encode() (map[string]string, string, error) {
	doc, err := json.Marshal(m)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode archive metadata: %w", err)
	}
	props := map[string]string{
		PropCustomChecksum: m.CustomChecksum,
		PropTableCount:     strconv.Itoa(len(m.Tables)),
	}
	return props, string(doc), nil
}

func decodeMetadata(p *ObjectProperties) (*ArchiveMetadata, error) {
	meta := &ArchiveMetadata{}
	if p == nil {
		return meta, nil
	}
	if p.Description != "" {
		if err := json.Unmarshal([]byte(p.Description), meta); err != nil {
			return nil, fmt.Errorf("failed to decode archive metadata: %w", err)
		}
	}
	if meta.CustomChecksum == "" {
		meta.CustomChecksum = p.Properties[PropCustomChecksum]
	}
	return meta, nil
}

// UploadResult identifies an uploaded archive.
type UploadResult struct {
	RemoteID        string `json:"remote_id"`
	WebLink         string `json:"web_link,omitempty"`
	ContentChecksum string `json:"content_checksum,omitempty"`
}

// ArchiveInfo is one entry of ListRecent.
type ArchiveInfo struct {
	RemoteID       string    `json:"remote_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	Size           int64     `json:"size"`
	WebLink        string    `json:"web_link,omitempty"`
	CustomChecksum string    `json:"custom_checksum,omitempty"`
}
