package digest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
)

const (
	helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	zeroDigest  = "66687aadf862bd776c8fc18b8e9f8e20089714856ee233b3902a591d0d5f2925"
)

func TestReaderKnownDigests(t *testing.T) {
	got, err := Reader(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if got != helloDigest {
		t.Fatalf("expected %s, got %s", helloDigest, got)
	}

	got, err = Reader(bytes.NewReader(make([]byte, 32)))
	if err != nil {
		t.Fatalf("hash zeros: %v", err)
	}
	if got != zeroDigest {
		t.Fatalf("expected %s, got %s", zeroDigest, got)
	}
}

func TestReaderIndependentOfChunking(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), ChunkSize/4+3)
	want := Bytes(payload)

	oneByte, err := Reader(iotest.OneByteReader(bytes.NewReader(payload)))
	if err != nil {
		t.Fatalf("hash one byte reader: %v", err)
	}
	half, err := Reader(iotest.HalfReader(bytes.NewReader(payload)))
	if err != nil {
		t.Fatalf("hash half reader: %v", err)
	}
	if oneByte != want || half != want {
		t.Fatalf("expected %s for every chunking, got %s and %s", want, oneByte, half)
	}
}

func TestReaderPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	if _, err := Reader(iotest.ErrReader(boom)); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := File(path)
	if err != nil {
		t.Fatalf("hash file: %v", err)
	}
	if got != helloDigest {
		t.Fatalf("expected %s, got %s", helloDigest, got)
	}

	if _, err := File(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	if err := Verify(strings.NewReader("hello"), strings.ToUpper(helloDigest)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	err := Verify(strings.NewReader("hello!"), helloDigest)
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}
