// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package s3store

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tomtom215/tablesnap/internal/remote"
)

type fakeObject struct {
	body     []byte
	metadata map[string]string
	modified time.Time
}

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	clock   time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject), clock: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
}

func notFound() error {
	return &smithy.GenericAPIError{Code: "NoSuchKey", Message: "not found", Fault: smithy.FaultClient}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Hour)
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, metadata: in.Metadata, modified: f.clock}
	return &s3.PutObjectOutput{ETag: aws.String(`"etag-` + aws.ToString(in.Key) + `"`)}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, notFound()
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(o.body)))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, notFound()
	}
	return &s3.HeadObjectOutput{Metadata: o.metadata, ETag: aws.String(`"h"`)}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key, o := range f.objects {
		if !strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			continue
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			LastModified: aws.Time(o.modified),
			Size:         aws.Int64(int64(len(o.body))),
		})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func upload(t *testing.T, b *Backend, name, checksum, description string) *remote.Object {
	t.Helper()
	obj, err := b.Create(context.Background(), remote.NewObject{
		Name:        name,
		ContentType: "application/gzip",
		Body:        strings.NewReader("gz:" + name),
		Size:        int64(len("gz:" + name)),
		Properties:  map[string]string{remote.PropCustomChecksum: checksum},
		Description: description,
	})
	if err != nil {
		t.Fatalf("Create(%s) error = %v", name, err)
	}
	return obj
}

func TestCreateWritesSidecar(t *testing.T) {
	api := newFakeS3()
	b := NewWithAPI(api, "bucket", "backups/")

	obj := upload(t, b, "a.json.gz", "c1", `{"tables":["users"]}`)
	if obj.ID != "backups/a.json.gz" || obj.ContentChecksum != "etag-backups/a.json.gz" {
		t.Errorf("unexpected object %+v", obj)
	}
	if _, ok := api.objects["backups/a.json.gz.meta.json"]; !ok {
		t.Error("sidecar not written")
	}
	if !b.IdempotentCreate() {
		t.Error("S3 creates should be idempotent")
	}
}

func TestListNewestFirstSkipsSidecars(t *testing.T) {
	api := newFakeS3()
	b := NewWithAPI(api, "bucket", "backups/")
	upload(t, b, "old.json.gz", "c-old", "{}")
	upload(t, b, "new.json.gz", "c-new", "{}")

	objs, err := b.List(context.Background(), remote.ListQuery{Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objs) != 1 || objs[0].Name != "new.json.gz" {
		t.Fatalf("List() = %+v", objs)
	}
	if objs[0].Properties[remote.PropCustomChecksum] != "c-new" {
		t.Errorf("checksum property = %q", objs[0].Properties[remote.PropCustomChecksum])
	}

	cutoff := api.objects["backups/new.json.gz"].modified
	older, err := b.List(context.Background(), remote.ListQuery{CreatedBefore: cutoff})
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 1 || older[0].Name != "old.json.gz" {
		t.Errorf("CreatedBefore filter = %+v", older)
	}
}

func TestPropertiesAndDelete(t *testing.T) {
	api := newFakeS3()
	b := NewWithAPI(api, "bucket", "")
	upload(t, b, "with.json.gz", "c1", `{"stats":{"users":{"count":1,"hash":"h"}}}`)
	upload(t, b, "legacy.json.gz", "c2", "")

	props, err := b.Properties(context.Background(), "with.json.gz")
	if err != nil {
		t.Fatalf("Properties() error = %v", err)
	}
	if !strings.Contains(props.Description, `"users"`) {
		t.Errorf("Description = %q", props.Description)
	}

	legacy, err := b.Properties(context.Background(), "legacy.json.gz")
	if err != nil {
		t.Fatalf("Properties(legacy) error = %v", err)
	}
	if legacy.Description != "" || legacy.Properties[remote.PropCustomChecksum] != "c2" {
		t.Errorf("legacy props = %+v", legacy)
	}

	if err := b.Delete(context.Background(), "with.json.gz"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(api.objects) != 1 {
		t.Errorf("expected only legacy object left, have %d", len(api.objects))
	}

	_, err = b.Properties(context.Background(), "with.json.gz")
	if !remote.IsNotFound(remote.Classify(err)) {
		t.Errorf("expected classified 404, got %v", err)
	}
}
