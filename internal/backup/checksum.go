// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// FileChecksum returns the lowercase hex sha256 of the file at path.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is inside the work directory
	if err != nil {
		return "", fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifyArchive reads a gzip archive to EOF, which checks its CRC and
// length trailer. It returns the uncompressed size.
func VerifyArchive(path string) (int64, error) {
	f, err := os.Open(path) //nolint:gosec // path is inside the work directory
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("archive is not a valid gzip stream: %w", err)
	}
	defer gz.Close() //nolint:errcheck // read-only

	n, err := io.Copy(io.Discard, gz)
	if err != nil {
		return n, fmt.Errorf("archive is corrupt: %w", err)
	}
	return n, nil
}
