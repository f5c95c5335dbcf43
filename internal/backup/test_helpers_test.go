// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/tomtom215/tablesnap/internal/remote"
	"github.com/tomtom215/tablesnap/internal/store"
)

var fixedTime = time.Date(2026, 10, 16, 9, 30, 0, 123000000, time.UTC)

var errFetch = errors.New("fetch failed")

// newTestStore returns users (3 rows), orders (rows rows) and an empty
// audit table.
func newTestStore(orders int) *store.MemoryStore {
	st := store.NewMemoryStore("sqlite")
	st.Insert("users",
		store.NewRecord([]string{"id", "name"}, []any{int64(1), "ada"}),
		store.NewRecord([]string{"id", "name"}, []any{int64(2), "grace"}),
		store.NewRecord([]string{"id", "name"}, []any{int64(1) << 60, "wide"}),
	)
	for i := 0; i < orders; i++ {
		st.Insert("orders", store.NewRecord([]string{"id", "total"}, []any{int64(i), float64(i) * 1.5}))
	}
	st.CreateTable("audit")
	return st
}

// failingStore fails FetchPage for selected tables from a given offset.
type failingStore struct {
	*store.MemoryStore
	failAt map[string]int
}

func (s *failingStore) Collection(name string) (store.Collection, error) {
	c, err := s.MemoryStore.Collection(name)
	if err != nil {
		return nil, err
	}
	if offset, ok := s.failAt[name]; ok {
		return &failingCollection{Collection: c, failAt: offset}, nil
	}
	return c, nil
}

type failingCollection struct {
	store.Collection
	failAt int
}

func (c *failingCollection) FetchPage(ctx context.Context, offset, limit int) ([]store.Record, error) {
	if offset >= c.failAt {
		return nil, errFetch
	}
	return c.Collection.FetchPage(ctx, offset, limit)
}

// blockingStore blocks ListTableNames until release is closed.
type blockingStore struct {
	*store.MemoryStore
	release chan struct{}
}

func (s *blockingStore) ListTableNames(ctx context.Context) ([]string, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.MemoryStore.ListTableNames(ctx)
}

type fakeUpload struct {
	path     string
	filename string
	meta     remote.ArchiveMetadata
}

// fakeRemote is an in-memory RemoteStore.
type fakeRemote struct {
	mu       sync.Mutex
	uploads  []fakeUpload
	archives []remote.ArchiveInfo
	metadata map[string]*remote.ArchiveMetadata
	cutoffs  []time.Time

	uploadErr error
	listErr   error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{metadata: make(map[string]*remote.ArchiveMetadata)}
}

func (f *fakeRemote) Upload(_ context.Context, localPath, filename string, meta remote.ArchiveMetadata) (*remote.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("archive missing at upload: %w", err)
	}
	f.uploads = append(f.uploads, fakeUpload{path: localPath, filename: filename, meta: meta})
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	id := fmt.Sprintf("remote-%d", len(f.uploads))
	f.archives = append([]remote.ArchiveInfo{{RemoteID: id, Name: filename, CustomChecksum: meta.CustomChecksum}}, f.archives...)
	m := meta
	f.metadata[id] = &m
	return &remote.UploadResult{RemoteID: id, WebLink: "https://remote.test/" + id}, nil
}

func (f *fakeRemote) ListRecent(_ context.Context, limit int) ([]remote.ArchiveInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := append([]remote.ArchiveInfo(nil), f.archives...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRemote) GetMetadata(_ context.Context, id string) (*remote.ArchiveMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.metadata[id]
	if !ok {
		return nil, remote.Classify(&remote.ResponseError{StatusCode: 404})
	}
	return m, nil
}

func (f *fakeRemote) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return 0, nil
}

func (f *fakeRemote) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func newTestManager(t *testing.T, st store.Store, rs RemoteStore, mutate ...func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		WorkDir:            t.TempDir(),
		PageSize:           2,
		CompressionLevel:   6,
		CompressionTimeout: 10 * time.Second,
		LogCapacity:        100,
		HistoryLimit:       10,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	m, err := NewManager(cfg, st, rs)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.now = func() time.Time { return fixedTime }
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

// waitForJob polls history until the job is terminal.
func waitForJob(t *testing.T, m *Manager, id string) Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		for _, j := range m.GetJobHistory() {
			if j.ID == id {
				return j
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

// archiveDoc is the decoded archive.
type archiveDoc struct {
	Version   string                       `json:"version"`
	CreatedAt string                       `json:"createdAt"`
	Engine    string                       `json:"engine"`
	Tables    []string                     `json:"tables"`
	Data      map[string][]json.RawMessage `json:"data"`
}

func readExport(t *testing.T, path string) archiveDoc {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	var doc archiveDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v\n%s", err, raw)
	}
	return doc
}

func gunzip(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to open gzip stream: %v", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, gz); err != nil {
		t.Fatalf("failed to decompress: %v", err)
	}
	return buf.Bytes()
}
