package botapi

import (
	"errors"
	"fmt"
)

// ErrFileNotFound is returned when the server no longer has a referenced file.
var ErrFileNotFound = errors.New("file not found")

// TransportError reports a request that never produced a usable response:
// network failure, timeout or an undecodable body.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("botapi %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError reports a response the server marked as failed, either through the
// HTTP status or the statusCode of the response envelope.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("botapi %s: status %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("botapi %s: status %d: %s", e.Method, e.StatusCode, e.Description)
}
