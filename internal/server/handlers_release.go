package server

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"apkd/internal/api"
	"apkd/internal/contentstore"
	"apkd/internal/models"
	"apkd/internal/release"
)

const (
	uploadFileField        = "file"
	uploadVersionCodeField = "versionCode"
	apkPathPrefix          = "/apk/"
	apkContentType         = "application/vnd.android.package-archive"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	current, err := s.service.Current(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if !current.Published() {
		s.writeJSON(w, http.StatusOK, api.UpdateResponse{VersionCode: models.UnpublishedVersionCode})
		return
	}

	s.writeJSON(w, http.StatusOK, api.UpdateResponse{
		VersionCode: current.VersionCode,
		ApkURL:      s.artifactURL(r, current.FilenameOrEmpty()),
		SHA256:      current.SHA256OrEmpty(),
	})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	obj, err := s.service.Artifact(r.Context(), r.PathValue("filename"))
	if err != nil {
		if errors.Is(err, contentstore.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	defer obj.Body.Close()

	header := w.Header()
	header.Set("Content-Type", artifactContentType(obj.Name))
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": obj.Name}))
	header.Set("X-Content-Type-Options", "nosniff")

	if seeker, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, obj.Name, obj.ModTime, seeker)
		return
	}

	header.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	if !obj.ModTime.IsZero() {
		header.Set("Last-Modified", obj.ModTime.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		s.log().Warn("artifact stream interrupted", "filename", obj.Name, "error", err)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	key := s.clientKey(r)
	if !s.authLimiter.Allow(key, s.now()) {
		s.writeErrorReq(w, r, http.StatusTooManyRequests, tooManyFailures())
		return
	}
	if !s.verifier.Verify(uploadToken(r)) {
		s.authLimiter.RegisterFailure(key, s.now())
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized())
		return
	}
	s.authLimiter.Reset(key)

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MultipartMemory); err != nil {
		apiErr := classifyMultipartError(err)
		s.writeErrorReq(w, r, httpStatusFromError(apiErr), apiErr)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFileField)
	if err != nil {
		// A part named "file" without a filename is parsed as a plain value.
		if _, ok := r.MultipartForm.Value[uploadFileField]; ok {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(msgEmptyFilename, ErrCodeEmptyFilename))
			return
		}
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(msgNoFile, ErrCodeMissingFile))
		return
	}
	defer file.Close()

	versionCode, err := release.ParseVersionCode(firstFormValue(r.MultipartForm, uploadVersionCodeField))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	published, err := s.service.Publish(r.Context(), release.PublishInput{
		Filename:    header.Filename,
		Body:        file,
		VersionCode: versionCode,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.UploadResponse{
		OK:          true,
		VersionCode: published.VersionCode,
		ApkURL:      s.artifactURL(r, published.FilenameOrEmpty()),
		SHA256:      published.SHA256OrEmpty(),
	})
}

// uploadToken reads the query parameter first and falls back to a Bearer
// header only when the parameter is absent or empty.
func uploadToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func classifyMultipartError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return badRequestCode(msgBodyTooLarge, ErrCodeRequestTooLarge)
	}
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return badRequestCode(msgNoFile, ErrCodeMissingFile)
	}
	return makeAPIError(http.StatusBadRequest, "invalid_argument", ErrCodeInvalidMultipart, errors.New(msgInvalidMultipart))
}

func firstFormValue(form *multipart.Form, key string) string {
	if form == nil {
		return ""
	}
	values := form.Value[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// artifactURL builds the absolute download URL for a stored artifact.
func (s *Server) artifactURL(r *http.Request, filename string) string {
	return s.baseURL(r) + apkPathPrefix + url.PathEscape(filename)
}

func (s *Server) baseURL(r *http.Request) string {
	if s.opts.PublicURL != "" {
		return strings.TrimRight(s.opts.PublicURL, "/")
	}
	return requestScheme(r, s.opts.TrustProxyHeaders) + "://" + requestHost(r, s.opts.TrustProxyHeaders)
}

func requestScheme(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			first, _, _ := strings.Cut(proto, ",")
			if strings.EqualFold(strings.TrimSpace(first), "https") {
				return "https"
			}
			return "http"
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func requestHost(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if host := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); host != "" {
			first, _, _ := strings.Cut(host, ",")
			return strings.TrimSpace(first)
		}
	}
	return r.Host
}

func artifactContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == ".apk" {
		return apkContentType
	}
	if ctype := mime.TypeByExtension(ext); ctype != "" {
		return ctype
	}
	return "application/octet-stream"
}
