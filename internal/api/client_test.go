package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestClientUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/update.json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(UpdateResponse{VersionCode: 4, ApkURL: "http://x/apk/a.apk", SHA256: "abc"})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Update(context.Background())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if resp.VersionCode != 4 || !resp.Published() || resp.SHA256 != "abc" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestClientUploadSendsMultipartAndToken(t *testing.T) {
	t.Setenv(uploadTokenEnvKey, "")
	var gotAuth, gotName, gotVersion string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		gotVersion = r.FormValue(VersionCodeField)
		file, header, err := r.FormFile(FileField)
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		gotName = header.Filename
		gotBody, _ = io.ReadAll(file)
		_ = json.NewEncoder(w).Encode(UploadResponse{OK: true, VersionCode: 9, ApkURL: "http://x/apk/app.apk", SHA256: "def"})
	}))
	defer srv.Close()

	version := int64(9)
	client := NewClient(srv.URL).WithToken("s3cret")
	resp, err := client.Upload(context.Background(), UploadRequest{Filename: "app.apk", VersionCode: &version}, bytes.NewReader([]byte("payload")))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !resp.OK || resp.VersionCode != 9 {
		t.Fatalf("unexpected response %#v", resp)
	}
	if gotAuth != "Bearer s3cret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	if gotName != "app.apk" || gotVersion != "9" || string(gotBody) != "payload" {
		t.Fatalf("unexpected form: name=%q version=%q body=%q", gotName, gotVersion, gotBody)
	}
}

func TestClientDecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "Unauthorized"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).WithToken("wrong").Upload(context.Background(), UploadRequest{Filename: "a.apk"}, bytes.NewReader(nil))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Unauthorized" {
		t.Fatalf("unexpected api error %#v", apiErr)
	}
}

func TestClientDownloadResolvesRelativeURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/apk/app.apk" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("Not Found"))
			return
		}
		_, _ = w.Write([]byte("apk-bytes"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	var buf bytes.Buffer
	n, err := client.Download(context.Background(), "/apk/app.apk", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != int64(len("apk-bytes")) || buf.String() != "apk-bytes" {
		t.Fatalf("unexpected download %d %q", n, buf.String())
	}

	_, err = client.Download(context.Background(), srv.URL+"/apk/missing.apk", io.Discard)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}
