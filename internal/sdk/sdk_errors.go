package sdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL      = errors.New("sdk: server url missing")
	ErrInvalidServerURL = errors.New("sdk: invalid server url")
	ErrNoCredentials    = errors.New("sdk: access token or client id required")
	ErrFileNotFound     = errors.New("sdk: file not found")
	ErrEmptyFile        = errors.New("sdk: file is empty")
)

const (
	CodeInvalidRequest      = "E_INVALID_REQUEST"
	CodeRateLimited         = "E_RATE_LIMITED"
	CodeInternalError       = "E_INTERNAL_ERROR"
	CodeNotFound            = "E_NOT_FOUND"
	CodeUnauthorized        = "E_UNAUTHORIZED"
	CodeForbidden           = "E_FORBIDDEN"
	CodeExpired             = "E_EXPIRED"
	CodeUploadIncomplete    = "E_UPLOAD_INCOMPLETE"
	CodeChunkOutOfRange     = "E_CHUNK_OUT_OF_RANGE"
	CodeIntegrityMismatch   = "E_INTEGRITY_MISMATCH"
	CodeRangeNotSatisfiable = "E_RANGE_NOT_SATISFIABLE"
)

// APIError is the error body returned by the Cadence API
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Missing []int  `json:"missing,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// IsCode reports whether err carries an APIError with the given code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// handleAPIError is a helper function that handles the common error pattern
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	// got a response, but api returned an error
	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok && err.Code != "" {
			return fmt.Errorf("%s %w", operation, err)
		}

		return fmt.Errorf("api error: %s status %d", operation, resp.StatusCode)
	}

	return nil
}
