package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a backend call failed.
type ErrorKind string

const (
	// KindTransport: the request never produced a response.
	KindTransport ErrorKind = "transport"
	// KindStatus: the backend answered with a non-2xx status.
	KindStatus ErrorKind = "status"
	// KindDecode: a 2xx response whose body could not be decoded.
	KindDecode ErrorKind = "decode"
)

// APIError is the failure side of every Client call.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("backend %s error (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("backend %s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("backend %s error (status %d)", e.Kind, e.Status)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Structured reports whether the backend supplied its own error message.
func (e *APIError) Structured() bool {
	return e.Kind == KindStatus && e.Message != ""
}

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// parseErrorField reads the envelope's error member, which the backend sends
// either as a plain string or as {code, message}. Alert endpoints put the
// text under status.
func parseErrorField(raw json.RawMessage) (code, message string) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return "", text
	}

	var structured struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil {
		if structured.Message == "" {
			structured.Message = structured.Status
		}
		return structured.Code, structured.Message
	}
	return "", ""
}
