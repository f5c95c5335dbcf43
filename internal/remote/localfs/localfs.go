// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

// Package localfs stores backup archives in a directory, typically a
// mounted NFS or SMB share. Each archive has a <name>.meta.json sidecar
// holding its properties and metadata document.
package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tablesnap/internal/remote"
)

const sidecarSuffix = ".meta.json"

// sidecar is the on-disk metadata of one archive.
type sidecar struct {
	CreatedAt   time.Time         `json:"created_at"`
	Size        int64             `json:"size"`
	SHA256      string            `json:"sha256"`
	Properties  map[string]string `json:"properties,omitempty"`
	Description string            `json:"description,omitempty"`
}

// Backend is a remote.Backend over a local directory.
type Backend struct {
	dir string
	now func() time.Time
}

// New creates the directory if needed.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Backend{dir: dir, now: time.Now}, nil
}

// Name implements remote.Backend.
func (b *Backend) Name() string { return "local" }

// IdempotentCreate reports true: a second create renames over the first.
func (b *Backend) IdempotentCreate() bool { return true }

func notFound(id string) error {
	return &remote.ResponseError{
		StatusCode: http.StatusNotFound,
		Body:       []byte(fmt.Sprintf(`{"error":{"code":404,"message":"%s not found","errors":[{"reason":"notFound","domain":"global"}]}}`, id)),
	}
}

// path resolves an object id, rejecting anything that is not a plain
// file name.
func (b *Backend) path(id string) (string, error) {
	if id == "" || filepath.Base(id) != id || id == "." || id == ".." {
		return "", &remote.ResponseError{StatusCode: http.StatusBadRequest}
	}
	return filepath.Join(b.dir, id), nil
}

// Create writes the archive through a temp file and renames it into place.
func (b *Backend) Create(ctx context.Context, obj remote.NewObject) (*remote.Object, error) {
	dst, err := b.path(obj.Name)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(b.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), contextReader{ctx: ctx, r: obj.Body})
	if err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing
		return nil, fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}

	meta := sidecar{
		CreatedAt:   b.now().UTC(),
		Size:        size,
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		Properties:  obj.Properties,
		Description: obj.Description,
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}
	if err := writeSidecar(dst+sidecarSuffix, meta); err != nil {
		return nil, err
	}

	return b.toObject(obj.Name, meta), nil
}

// List reads every sidecar in the directory.
func (b *Backend) List(ctx context.Context, q remote.ListQuery) ([]remote.Object, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var objects []remote.Object
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), sidecarSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), sidecarSuffix)
		meta, err := readSidecar(filepath.Join(b.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if !q.CreatedBefore.IsZero() && !meta.CreatedAt.Before(q.CreatedBefore) {
			continue
		}
		objects = append(objects, *b.toObject(name, meta))
	}

	sort.SliceStable(objects, func(i, j int) bool {
		if objects[i].CreatedAt.Equal(objects[j].CreatedAt) {
			return objects[i].Name > objects[j].Name
		}
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
	if q.Limit > 0 && len(objects) > q.Limit {
		objects = objects[:q.Limit]
	}
	return objects, nil
}

// Properties implements remote.Backend.
func (b *Backend) Properties(_ context.Context, id string) (*remote.ObjectProperties, error) {
	p, err := b.path(id)
	if err != nil {
		return nil, err
	}
	meta, err := readSidecar(p + sidecarSuffix)
	if os.IsNotExist(err) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &remote.ObjectProperties{Properties: meta.Properties, Description: meta.Description}, nil
}

// Delete removes the archive and its sidecar.
func (b *Backend) Delete(_ context.Context, id string) error {
	p, err := b.path(id)
	if err != nil {
		return err
	}
	errArchive := os.Remove(p)
	errSidecar := os.Remove(p + sidecarSuffix)
	if os.IsNotExist(errArchive) && os.IsNotExist(errSidecar) {
		return notFound(id)
	}
	if errArchive != nil && !os.IsNotExist(errArchive) {
		return fmt.Errorf("failed to delete archive: %w", errArchive)
	}
	if errSidecar != nil && !os.IsNotExist(errSidecar) {
		return fmt.Errorf("failed to delete sidecar: %w", errSidecar)
	}
	return nil
}

func (b *Backend) toObject(name string, meta sidecar) *remote.Object {
	abs, err := filepath.Abs(filepath.Join(b.dir, name))
	if err != nil {
		abs = filepath.Join(b.dir, name)
	}
	return &remote.Object{
		ID:              name,
		Name:            name,
		CreatedAt:       meta.CreatedAt,
		Size:            meta.Size,
		WebLink:         "file://" + filepath.ToSlash(abs),
		ContentChecksum: meta.SHA256,
		Properties:      meta.Properties,
	}
}

func writeSidecar(path string, meta sidecar) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck,gosec // best effort
		return fmt.Errorf("failed to move sidecar into place: %w", err)
	}
	return nil
}

func readSidecar(path string) (sidecar, error) {
	var meta sidecar
	data, err := os.ReadFile(path) //nolint:gosec // path is inside the backup directory
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to decode sidecar %s: %w", filepath.Base(path), err)
	}
	return meta, nil
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
