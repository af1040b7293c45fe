package api

import "fmt"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	// Missing lists chunk indices not yet received, only set for E_UPLOAD_INCOMPLETE
	Missing []int `json:"missing,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cadence api error: code=%s, message=%s", e.Code, e.Message)
}
