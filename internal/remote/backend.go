// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package remote

import (
	"context"
	"io"
	"time"
)

// Backend is a concrete object store scoped to one folder, bucket prefix
// or directory. Backends return their SDK's native errors; the Client
// classifies them.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Create stores a new object.
	Create(ctx context.Context, obj NewObject) (*Object, error)

	// List returns archives newest first.
	List(ctx context.Context, q ListQuery) ([]Object, error)

	// Properties returns the metadata stored with an object.
	Properties(ctx context.Context, id string) (*ObjectProperties, error)

	// Delete removes an object and anything stored alongside it.
	Delete(ctx context.Context, id string) error
}

// IdempotentCreator is implemented by backends whose Create replaces an
// existing object of the same name instead of adding a second one.
type IdempotentCreator interface {
	IdempotentCreate() bool
}

// NewObject is an object to upload.
type NewObject struct {
	Name        string
	ContentType string
	Body        io.Reader
	Size        int64

	// Properties are small indexed key/value pairs.
	Properties map[string]string

	// Description is a free-form document stored with the object.
	Description string
}

// Object describes a stored archive.
type Object struct {
	ID              string
	Name            string
	CreatedAt       time.Time
	Size            int64
	WebLink         string
	ContentChecksum string
	Properties      map[string]string
}

// ListQuery filters List. A zero CreatedBefore matches everything.
type ListQuery struct {
	Limit         int
	CreatedBefore time.Time
}

// ObjectProperties is the metadata of one object.
type ObjectProperties struct {
	Properties  map[string]string
	Description string
}
