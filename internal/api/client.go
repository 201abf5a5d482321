package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "APKD_HTTP_TIMEOUT"
	uploadTokenEnvKey  = "APKD_UPLOAD_TOKEN"

	// FileField and VersionCodeField are the multipart field names of /upload.
	FileField        = "file"
	VersionCodeField = "versionCode"
)

// Client is a simple HTTP client for the apkd API.
type Client struct {
	baseURL string
	http    *http.Client
	// transfer has no overall timeout; uploads and downloads are bounded by ctx.
	transfer *http.Client
	token    string
}

// NewClient creates a new API client. The upload token defaults to $APKD_UPLOAD_TOKEN.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: httpTimeoutFromEnv()},
		transfer: &http.Client{},
		token:    strings.TrimSpace(os.Getenv(uploadTokenEnvKey)),
	}
}

// WithToken overrides the upload token.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var resp HealthResponse
	return c.getJSON(ctx, "/health", &resp)
}

// Update fetches the current update descriptor.
func (c *Client) Update(ctx context.Context) (UpdateResponse, error) {
	var resp UpdateResponse
	err := c.getJSON(ctx, "/update.json", &resp)
	return resp, err
}

// Upload streams body as a multipart form to /upload.
func (c *Client) Upload(ctx context.Context, req UploadRequest, body io.Reader) (UploadResponse, error) {
	var resp UploadResponse

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, req, body))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuthHeader(httpReq)

	httpResp, err := c.transfer.Do(httpReq)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func writeUploadForm(mw *multipart.Writer, req UploadRequest, body io.Reader) error {
	if req.VersionCode != nil {
		if err := mw.WriteField(VersionCodeField, strconv.FormatInt(*req.VersionCode, 10)); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(FileField, req.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// Download copies the artifact at apkURL into w. Relative URLs are resolved
// against the client's base URL.
func (c *Client) Download(ctx context.Context, apkURL string, w io.Writer) (int64, error) {
	endpoint, err := c.resolve(apkURL)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.transfer.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid artifact url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.token == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
