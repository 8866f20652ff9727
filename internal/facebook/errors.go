package facebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Graph error codes that mean the access token can no longer be used
const (
	CodeInvalidToken   = 190
	CodeSessionExpired = 102
)

// APIError is a Graph API error envelope
type APIError struct {
	Status    int    `json:"-"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode"`
	FBTraceID string `json:"fbtrace_id"`
}

// Error returns the remote message unchanged
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("graph request failed: %d %s", e.Status, http.StatusText(e.Status))
}

// IsAuthError reports whether the error invalidates the token used for the call
func (e *APIError) IsAuthError() bool {
	return e.Code == CodeInvalidToken || e.Code == CodeSessionExpired
}

// AsAPIError unwraps err into an *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

func parseAPIError(status int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		msg := string(body)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return &APIError{Status: status, Message: msg}
	}
	env.Error.Status = status
	return env.Error
}
