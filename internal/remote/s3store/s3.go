// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

// Package s3store stores backup archives in an S3-compatible bucket.
//
// Each archive object carries the checksum and table count as user
// metadata. The tables/stats document does not fit the 2 KB metadata limit,
// so it is written to a sidecar object named <key>.meta.json.
package s3store

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tomtom215/tablesnap/internal/remote"
)

const sidecarSuffix = ".meta.json"

// API is the subset of *s3.Client used by the backend.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config configures the S3 backend.
type Config struct {
	Endpoint     string
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	Prefix       string
	UsePathStyle bool
}

// Backend is a remote.Backend backed by S3.
type Backend struct {
	api    API
	bucket string
	prefix string
	now    func() time.Time
}

// New creates a backend with an SDK client built from cfg. Without static
// keys the standard AWS_* environment variables are used.
func New(cfg Config) *Backend {
	accessKey, secretKey, session := cfg.AccessKey, cfg.SecretKey, ""
	if accessKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
		session = os.Getenv("AWS_SESSION_TOKEN")
	}

	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if accessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(accessKey, secretKey, session)
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return NewWithAPI(s3.New(opts), cfg.Bucket, cfg.Prefix)
}

// NewWithAPI creates a backend over an existing client.
func NewWithAPI(api API, bucket, prefix string) *Backend {
	return &Backend{api: api, bucket: bucket, prefix: prefix, now: time.Now}
}

// Name implements remote.Backend.
func (b *Backend) Name() string { return "s3" }

// IdempotentCreate reports true: a PUT to the same key replaces the object.
func (b *Backend) IdempotentCreate() bool { return true }

// Create uploads the archive, then its metadata sidecar.
func (b *Backend) Create(ctx context.Context, obj remote.NewObject) (*remote.Object, error) {
	key := b.prefix + obj.Name
	out, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          obj.Body,
		ContentLength: aws.Int64(obj.Size),
		ContentType:   aws.String(obj.ContentType),
		Metadata:      obj.Properties,
	})
	if err != nil {
		return nil, err
	}

	if obj.Description != "" {
		if _, err := b.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         aws.String(key + sidecarSuffix),
			Body:        strings.NewReader(obj.Description),
			ContentType: aws.String("application/json"),
		}); err != nil {
			return nil, fmt.Errorf("failed to write metadata sidecar: %w", err)
		}
	}

	return &remote.Object{
		ID:              key,
		Name:            obj.Name,
		CreatedAt:       b.now().UTC(),
		Size:            obj.Size,
		ContentChecksum: strings.Trim(aws.ToString(out.ETag), `"`),
		Properties:      obj.Properties,
	}, nil
}

// List pages through the prefix, newest first. User metadata is fetched
// with HeadObject for the returned objects only.
func (b *Backend) List(ctx context.Context, q remote.ListQuery) ([]remote.Object, error) {
	var objects []remote.Object
	var token *string
	for {
		out, err := b.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(b.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Contents {
			key := aws.ToString(item.Key)
			if strings.HasSuffix(key, sidecarSuffix) {
				continue
			}
			created := aws.ToTime(item.LastModified)
			if !q.CreatedBefore.IsZero() && !created.Before(q.CreatedBefore) {
				continue
			}
			objects = append(objects, remote.Object{
				ID:        key,
				Name:      strings.TrimPrefix(key, b.prefix),
				CreatedAt: created,
				Size:      aws.ToInt64(item.Size),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
	if q.Limit > 0 && len(objects) > q.Limit {
		objects = objects[:q.Limit]
	}

	for i := range objects {
		head, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(objects[i].ID),
		})
		if err != nil {
			return nil, err
		}
		objects[i].Properties = head.Metadata
		objects[i].ContentChecksum = strings.Trim(aws.ToString(head.ETag), `"`)
	}
	return objects, nil
}

// Properties returns the user metadata and the sidecar document. A
// missing sidecar yields an empty description.
func (b *Backend) Properties(ctx context.Context, id string) (*remote.ObjectProperties, error) {
	head, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, err
	}
	props := &remote.ObjectProperties{Properties: head.Metadata}

	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id + sidecarSuffix),
	})
	if err != nil {
		if remote.IsNotFound(remote.Classify(err)) {
			return props, nil
		}
		return nil, err
	}
	defer out.Body.Close()

	doc, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata sidecar: %w", err)
	}
	props.Description = string(doc)
	return props, nil
}

// Delete removes the archive and its sidecar.
func (b *Backend) Delete(ctx context.Context, id string) error {
	for _, key := range []string{id, id + sidecarSuffix} {
		if _, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return err
		}
	}
	return nil
}
