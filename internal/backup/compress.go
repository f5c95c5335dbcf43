// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// syncWriteCloser is the archive being written, normally an *os.File.
type syncWriteCloser interface {
	io.WriteCloser
	Sync() error
}

// Compress gzips src into dst at the given level. The copy is a stream
// and never holds the document in memory. If it runs longer than timeout
// both files are closed under it, dst is removed and ErrCompressionTimeout
// is returned.
//
// The gzip header carries no name or modification time, so equal input
// gives equal output.
func Compress(ctx context.Context, src, dst string, level int, timeout time.Duration) (err error) {
	in, err := os.Open(src) //nolint:gosec // path is inside the work directory
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // path is inside the work directory
	if err != nil {
		in.Close() //nolint:errcheck,gosec // read-only
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(dst) //nolint:errcheck,gosec // best effort
		}
	}()
	return compressStream(ctx, in, out, level, timeout)
}

// compressStream owns in and out and closes both before returning.
func compressStream(ctx context.Context, in io.ReadCloser, out syncWriteCloser, level int, timeout time.Duration) error {
	gz, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		in.Close()  //nolint:errcheck,gosec // read-only
		out.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- pipe(in, gz, out)
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	abort := func() {
		in.Close()  //nolint:errcheck,gosec // unblocks the copy
		out.Close() //nolint:errcheck,gosec // unblocks the copy
		<-done
	}

	select {
	case err := <-done:
		return err
	case <-timer:
		abort()
		return fmt.Errorf("%w after %s", ErrCompressionTimeout, timeout)
	case <-ctx.Done():
		abort()
		return ctx.Err()
	}
}

// pipe copies in through gz into out and closes all three.
func pipe(in io.ReadCloser, gz *gzip.Writer, out syncWriteCloser) error {
	defer in.Close() //nolint:errcheck // read-only

	if _, err := io.Copy(gz, in); err != nil {
		out.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("failed to compress export: %w", err)
	}
	if err := gz.Close(); err != nil {
		out.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close() //nolint:errcheck,gosec // already failing
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}
