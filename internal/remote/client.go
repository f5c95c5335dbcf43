// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/tablesnap/internal/cache"
	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/metrics"
)

// deletePageSize bounds each listing done by DeleteOlderThan.
const deletePageSize = 100

// ClientOptions configures a Client.
type ClientOptions struct {
	Policy  Policy
	Breaker BreakerSettings

	// RateLimit is calls per second; zero disables limiting.
	RateLimit float64
	RateBurst int

	// MetadataCacheSize bounds the archive metadata cache. Zero uses
	// 256 entries; a negative value disables caching.
	MetadataCacheSize int
	MetadataCacheTTL  time.Duration
}

// Client is the archive store used by the backup pipeline.
type Client struct {
	backend Backend
	policy  Policy
	breaker *Breaker
	limiter *rate.Limiter

	// Archive metadata is written once at upload, so cached entries only
	// go stale when the archive is deleted.
	metaCache *cache.LRU[*ArchiveMetadata]
}

// NewClient wraps backend with retry, rate limiting and a circuit breaker.
func NewClient(backend Backend, opts ClientOptions) *Client {
	if opts.Breaker.Name == "" {
		opts.Breaker = DefaultBreakerSettings("remote-" + backend.Name())
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		backend: backend,
		policy:  opts.Policy,
		breaker: NewBreaker(opts.Breaker),
		limiter: rate.NewLimiter(limit, burst),
	}
	if opts.MetadataCacheSize >= 0 {
		size := opts.MetadataCacheSize
		if size == 0 {
			size = 256
		}
		c.metaCache = cache.NewLRU[*ArchiveMetadata](size, opts.MetadataCacheTTL)
	}
	return c
}

// Backend returns the wrapped backend name.
func (c *Client) Backend() string {
	return c.backend.Name()
}

// BreakerState returns the circuit breaker state: "closed", "half-open"
// or "open".
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

func call[T any](ctx context.Context, c *Client, op string, idempotent bool, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	result, err := Retry(ctx, c.policy, op, idempotent, func(ctx context.Context) (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		return execute(c.breaker, func() (T, error) { return fn(ctx) })
	})
	metrics.RecordRemoteCall(op, time.Since(start), err)
	if apiErr, ok := AsAPIError(err); ok {
		metrics.RecordRemoteError(apiErr.Code, apiErr.Reason)
	}
	return result, err
}

// Upload stores the file at localPath as filename with meta attached.
// Creation is only retried on ambiguous failures when the backend
// overwrites by name.
func (c *Client) Upload(ctx context.Context, localPath, filename string, meta ArchiveMetadata) (*UploadResult, error) {
	props, description, err := meta.encode()
	if err != nil {
		return nil, Classify(err)
	}

	idempotent := false
	if ic, ok := c.backend.(IdempotentCreator); ok {
		idempotent = ic.IdempotentCreate()
	}

	obj, err := call(ctx, c, "upload", idempotent, func(ctx context.Context) (*Object, error) {
		f, err := os.Open(localPath) //nolint:gosec // path is produced by the backup pipeline
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat archive: %w", err)
		}
		return c.backend.Create(ctx, NewObject{
			Name:        filename,
			ContentType: "application/gzip",
			Body:        f,
			Size:        info.Size(),
			Properties:  props,
			Description: description,
		})
	})
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Str("backend", c.backend.Name()).
		Str("remote_id", obj.ID).
		Str("name", filename).
		Msg("Archive uploaded")

	return &UploadResult{
		RemoteID:        obj.ID,
		WebLink:         obj.WebLink,
		ContentChecksum: obj.ContentChecksum,
	}, nil
}

// ListRecent returns up to limit archives, newest first.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]ArchiveInfo, error) {
	objects, err := call(ctx, c, "list", true, func(ctx context.Context) ([]Object, error) {
		return c.backend.List(ctx, ListQuery{Limit: limit})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}

	out := make([]ArchiveInfo, len(objects))
	for i, o := range objects {
		out[i] = ArchiveInfo{
			RemoteID:       o.ID,
			Name:           o.Name,
			CreatedAt:      o.CreatedAt,
			Size:           o.Size,
			WebLink:        o.WebLink,
			CustomChecksum: o.Properties[PropCustomChecksum],
		}
	}
	return out, nil
}

// GetMetadata returns the metadata stored with an archive. Archives
// without a metadata document yield an ArchiveMetadata with nil Stats.
func (c *Client) GetMetadata(ctx context.Context, remoteID string) (*ArchiveMetadata, error) {
	if c.metaCache != nil {
		if meta, ok := c.metaCache.Get(remoteID); ok {
			return meta.clone(), nil
		}
	}

	props, err := call(ctx, c, "get_metadata", true, func(ctx context.Context) (*ObjectProperties, error) {
		return c.backend.Properties(ctx, remoteID)
	})
	if err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(props)
	if err != nil {
		return nil, Classify(err)
	}
	if c.metaCache != nil {
		c.metaCache.Add(remoteID, meta.clone())
	}
	return meta, nil
}

// Delete removes an archive. Deleting an archive that is already gone
// succeeds.
func (c *Client) Delete(ctx context.Context, remoteID string) error {
	_, err := call(ctx, c, "delete", true, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.backend.Delete(ctx, remoteID)
	})
	if c.metaCache != nil {
		c.metaCache.Remove(remoteID)
	}
	if IsNotFound(err) {
		return nil
	}
	return err
}

// DeleteOlderThan deletes every archive created before cutoff and returns
// how many were removed. Individual failures are collected and do not stop
// the sweep.
func (c *Client) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	var errs []error
	failed := make(map[string]bool)

	for {
		objects, err := call(ctx, c, "list", true, func(ctx context.Context) ([]Object, error) {
			return c.backend.List(ctx, ListQuery{Limit: deletePageSize, CreatedBefore: cutoff})
		})
		if err != nil {
			errs = append(errs, err)
			break
		}

		progress := false
		for _, o := range objects {
			if failed[o.ID] || !o.CreatedAt.Before(cutoff) {
				continue
			}
			if err := c.Delete(ctx, o.ID); err != nil {
				failed[o.ID] = true
				errs = append(errs, fmt.Errorf("failed to delete %s: %w", o.Name, err))
				continue
			}
			deleted++
			progress = true
			logging.Ctx(ctx).Info().Str("remote_id", o.ID).Str("name", o.Name).Msg("Deleted expired archive")
		}

		if !progress || len(objects) < deletePageSize {
			break
		}
	}
	return deleted, errors.Join(errs...)
}
