package server

// Numeric error codes are logged with every rejected request. They are not
// part of the response body.
const (
	// Validation (1xxx)
	ErrCodeInvalidArgument    = 1000
	ErrCodeRequestTooLarge    = 1002
	ErrCodeMissingFile        = 1009
	ErrCodeEmptyFilename      = 1010
	ErrCodeInvalidVersionCode = 1011
	ErrCodeInvalidMultipart   = 1012

	// Domain state (2xxx)
	ErrCodeArtifactNotFound = 2001

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 404:
		return ErrCodeArtifactNotFound
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
