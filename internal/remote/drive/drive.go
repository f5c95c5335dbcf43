// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

// Package drive stores backup archives in a Google Drive folder.
//
// Archive metadata is kept in appProperties (checksum, table count) and in
// the file description (the full tables/stats document).
package drive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tomtom215/tablesnap/internal/remote"
)

const listFields = "files(id,name,createdTime,size,webViewLink,md5Checksum,appProperties)"

// Config configures the Drive backend.
type Config struct {
	FolderID string

	// CredentialsFile is a service account or authorized-user JSON file.
	// Application default credentials are used when empty.
	CredentialsFile string

	// Options are appended to the client options, e.g. an endpoint
	// override in tests.
	Options []option.ClientOption
}

// Backend is a remote.Backend backed by Drive v3.
type Backend struct {
	files    *drive.FilesService
	folderID string
}

// New creates a Drive backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.FolderID == "" {
		return nil, fmt.Errorf("drive folder id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read drive credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse drive credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(creds.TokenSource))
	}
	opts = append(opts, cfg.Options...)

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Backend{files: srv.Files, folderID: cfg.FolderID}, nil
}

// Name implements remote.Backend.
func (b *Backend) Name() string { return "drive" }

// Create uploads obj into the backup folder.
func (b *Backend) Create(ctx context.Context, obj remote.NewObject) (*remote.Object, error) {
	file := &drive.File{
		Name:          obj.Name,
		Parents:       []string{b.folderID},
		MimeType:      obj.ContentType,
		AppProperties: obj.Properties,
		Description:   obj.Description,
	}
	created, err := b.files.Create(file).
		Media(obj.Body, googleapi.ContentType(obj.ContentType)).
		Fields("id", "name", "createdTime", "size", "webViewLink", "md5Checksum", "appProperties").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	o := toObject(created)
	if o.Size == 0 {
		o.Size = obj.Size
	}
	return &o, nil
}

// List returns files in the folder, newest first.
func (b *Backend) List(ctx context.Context, q remote.ListQuery) ([]remote.Object, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(b.folderID))
	if !q.CreatedBefore.IsZero() {
		query += fmt.Sprintf(" and createdTime < '%s'", q.CreatedBefore.UTC().Format(time.RFC3339))
	}

	call := b.files.List().
		Q(query).
		OrderBy("createdTime desc").
		Fields(listFields).
		Context(ctx)
	if q.Limit > 0 {
		call = call.PageSize(int64(q.Limit))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, err
	}

	out := make([]remote.Object, 0, len(resp.Files))
	for _, f := range resp.Files {
		out = append(out, toObject(f))
	}
	return out, nil
}

// Properties returns the appProperties and description of a file.
func (b *Backend) Properties(ctx context.Context, id string) (*remote.ObjectProperties, error) {
	f, err := b.files.Get(id).Fields("appProperties", "description").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return &remote.ObjectProperties{Properties: f.AppProperties, Description: f.Description}, nil
}

// Delete permanently removes a file.
func (b *Backend) Delete(ctx context.Context, id string) error {
	return b.files.Delete(id).Context(ctx).Do()
}

func toObject(f *drive.File) remote.Object {
	created, _ := time.Parse(time.RFC3339, f.CreatedTime)
	return remote.Object{
		ID:              f.Id,
		Name:            f.Name,
		CreatedAt:       created,
		Size:            f.Size,
		WebLink:         f.WebViewLink,
		ContentChecksum: f.Md5Checksum,
		Properties:      f.AppProperties,
	}
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
