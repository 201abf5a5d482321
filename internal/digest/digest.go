// Package digest computes the SHA-256 fingerprints clients use to verify
// downloaded artifacts.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ChunkSize is the read buffer used while streaming content into the hash.
const ChunkSize = 8192

// ErrMismatch is returned by Verify when content does not match the expected digest.
var ErrMismatch = errors.New("sha256 mismatch")

// File streams the file at path and returns its lowercase hex digest.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, nil
}

// Reader streams r in ChunkSize reads and returns its lowercase hex digest.
func Reader(r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, onlyReader{r}, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes returns the lowercase hex digest of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Verify hashes r and compares the result with want.
func Verify(r io.Reader, want string) error {
	got, err := Reader(r)
	if err != nil {
		return err
	}
	want = strings.ToLower(strings.TrimSpace(want))
	if got != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrMismatch, want, got)
	}
	return nil
}

// onlyReader hides WriterTo so io.CopyBuffer honors the chunk buffer.
type onlyReader struct {
	io.Reader
}
