package api

// UpdateResponse is the body of GET /update.json.
type UpdateResponse struct {
	VersionCode int64  `json:"versionCode"`
	ApkURL      string `json:"apkUrl"`
	SHA256      string `json:"sha256"`
}

// Published reports whether an artifact has been uploaded.
func (r UpdateResponse) Published() bool {
	return r.ApkURL != ""
}

// UploadRequest describes the form fields of POST /upload.
type UploadRequest struct {
	Filename    string
	VersionCode *int64
}

// UploadResponse is the body of a successful POST /upload.
type UploadResponse struct {
	OK          bool   `json:"ok"`
	VersionCode int64  `json:"versionCode"`
	ApkURL      string `json:"apkUrl"`
	SHA256      string `json:"sha256"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON error wrapper used by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}
