package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"apkd/internal/api"
	"apkd/internal/release"
)

const (
	msgUnauthorized       = "Unauthorized"
	msgTooManyFailures    = "too many failed attempts; retry later"
	msgNoFile             = "No file uploaded"
	msgEmptyFilename      = "Empty filename"
	msgInvalidVersionCode = "invalid versionCode"
	msgBodyTooLarge       = "request body too large"
	msgInvalidMultipart   = "invalid multipart form"
	msgInternal           = "internal error"
)

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	code := errorCode(status, err)
	numericCode := errorNumericCode(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", numericCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}

	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		message = msgInternal
	case status >= 400 && shouldWarnClientError(status):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

func makeAPIError(status int, code string, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}

	var existing apiError
	if errors.As(err, &existing) {
		if existing.status != 0 {
			return existing
		}
	}

	return apiError{status: status, code: code, errCode: errCode, err: err}
}

func badRequestCode(message string, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, errors.New(message))
}

func unauthorized() error {
	return makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, errors.New(msgUnauthorized))
}

func tooManyFailures() error {
	return makeAPIError(http.StatusTooManyRequests, "resource_exhausted", ErrCodeResourceExhausted, errors.New(msgTooManyFailures))
}

func storeFailure(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, err)
}

func internalError(err error) error {
	return makeAPIError(http.StatusInternalServerError, "internal", ErrCodeInternal, err)
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

func errorCode(status int, err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.code != "" {
		return apiErr.code
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_argument"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "resource_exhausted"
	case http.StatusInternalServerError:
		return "internal"
	default:
		return ""
	}
}

func errorNumericCode(status int, err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.errCode > 0 {
		return apiErr.errCode
	}
	return defaultErrorCodeByStatus(status)
}

func shouldWarnClientError(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// serviceError maps release service failures onto API errors.
func serviceError(err error) error {
	var vErr *release.ValidationError
	if errors.As(err, &vErr) {
		switch vErr.Message {
		case msgNoFile:
			return badRequestCode(msgNoFile, ErrCodeMissingFile)
		case msgEmptyFilename:
			return badRequestCode(msgEmptyFilename, ErrCodeEmptyFilename)
		}
		if vErr.Field == "versionCode" {
			return badRequestCode(msgInvalidVersionCode, ErrCodeInvalidVersionCode)
		}
		return badRequestCode(vErr.Error(), ErrCodeInvalidArgument)
	}
	var sErr *release.StorageError
	if errors.As(err, &sErr) {
		return storeFailure(err)
	}
	return internalError(err)
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	err = serviceError(err)
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}
