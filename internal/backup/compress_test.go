// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat(`{"id":1,"name":"ada"},`, 10000)
	src := writeFile(t, dir, "export.json", content)
	dst := filepath.Join(dir, "export.json.gz")

	if err := Compress(context.Background(), src, dst, 6, 10*time.Second); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if got := string(gunzip(t, dst)); got != content {
		t.Error("decompressed content differs")
	}

	n, err := VerifyArchive(dst)
	if err != nil {
		t.Fatalf("VerifyArchive() error = %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("VerifyArchive() = %d bytes, want %d", n, len(content))
	}
}

func TestCompressIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "export.json", strings.Repeat("abc", 5000))

	var sums []string
	for _, name := range []string{"a.gz", "b.gz"} {
		dst := filepath.Join(dir, name)
		if err := Compress(context.Background(), src, dst, 6, time.Minute); err != nil {
			t.Fatal(err)
		}
		sum, err := FileChecksum(dst)
		if err != nil {
			t.Fatal(err)
		}
		sums = append(sums, sum)
	}
	if sums[0] != sums[1] {
		t.Errorf("checksums differ: %v", sums)
	}
}

func TestCompressMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := Compress(context.Background(), filepath.Join(dir, "nope.json"), filepath.Join(dir, "out.gz"), 6, time.Second)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out.gz")); !os.IsNotExist(statErr) {
		t.Error("no archive should be created")
	}
}

func TestCompressTimeout(t *testing.T) {
	dir := t.TempDir()
	out, err := os.Create(filepath.Join(dir, "out.gz"))
	if err != nil {
		t.Fatal(err)
	}

	// The pipe never delivers data, so only the timeout can end the copy.
	r, w := io.Pipe()
	defer w.Close()

	start := time.Now()
	err = compressStream(context.Background(), r, out, 6, 50*time.Millisecond)
	if !errors.Is(err, ErrCompressionTimeout) {
		t.Fatalf("err = %v, want ErrCompressionTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestCompressCancelled(t *testing.T) {
	dir := t.TempDir()
	out, err := os.Create(filepath.Join(dir, "out.gz"))
	if err != nil {
		t.Fatal(err)
	}
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := compressStream(ctx, r, out, 6, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFileChecksum(t *testing.T) {
	path := writeFile(t, t.TempDir(), "abc", "abc")
	sum, err := FileChecksum(path)
	if err != nil {
		t.Fatal(err)
	}
	if sum != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("FileChecksum() = %s", sum)
	}
}

func TestVerifyArchiveRejectsCorruption(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "export.json", strings.Repeat("0123456789", 1000))
	dst := filepath.Join(dir, "export.json.gz")
	if err := Compress(context.Background(), src, dst, 6, time.Second*10); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	truncated := writeFile(t, dir, "truncated.gz", string(data[:len(data)-6]))
	if _, err := VerifyArchive(truncated); err == nil {
		t.Error("truncated archive passed verification")
	}

	notGzip := writeFile(t, dir, "plain.gz", "not gzip at all")
	if _, err := VerifyArchive(notGzip); err == nil {
		t.Error("plain file passed verification")
	}
}
