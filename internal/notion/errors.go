package notion

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformed marks a response body that could not be decoded.
var ErrMalformed = errors.New("malformed notion response")

// APIError is a non-2xx answer from the Notion API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion api: status %d", e.Status)
	}
	return fmt.Sprintf("notion api: status %d %s: %s", e.Status, e.Code, e.Message)
}

// IsRecordScoped reports whether err concerns only the record being
// fetched (bad payload, vanished page, validation failure) rather than the
// connection or credentials. Scoped errors skip one record; all others
// abort the refresh.
func IsRecordScoped(err error) bool {
	if errors.Is(err, ErrMalformed) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusBadRequest, http.StatusNotFound:
			return true
		}
	}
	return false
}
