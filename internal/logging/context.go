// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	requestIDKey contextKey = "request_id"
)

// ContextWithJobID tags ctx with a backup job id. Every line logged through
// Ctx(ctx) afterwards carries a job_id field.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext returns the job id stored in ctx, or "".
func JobIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(jobIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID tags ctx with an HTTP request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger enriched with the job_id and request_id
// found in ctx.
//
//	logging.Ctx(ctx).Info().Str("step", "compress").Msg("Compressing archive")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()
	if id := JobIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("job_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	l := logCtx.Logger()
	return &l
}
