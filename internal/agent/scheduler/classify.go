package scheduler

import (
	"strings"

	"github.com/fbpage-agent/internal/facebook"
)

// ErrorKind is the class of a per-item failure
type ErrorKind int

const (
	// ErrorKindNone means there was no error
	ErrorKindNone ErrorKind = iota
	// ErrorKindItem is recovered locally, the run moves on to the next item
	ErrorKindItem
	// ErrorKindAuth ends the run and requires the user to log in again
	ErrorKindAuth
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindAuth:
		return "auth"
	default:
		return "item"
	}
}

var authMarkers = []string{"session", "token", "oauth"}

// ClassifyError inspects an error message for signs of an expired or revoked login
func ClassifyError(message string) ErrorKind {
	if message == "" {
		return ErrorKindNone
	}
	lower := strings.ToLower(message)
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return ErrorKindAuth
		}
	}
	return ErrorKindItem
}

// Classify prefers the Graph error code and falls back to the message text
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	if apiErr, ok := facebook.AsAPIError(err); ok && apiErr.IsAuthError() {
		return ErrorKindAuth
	}
	if kind := ClassifyError(err.Error()); kind != ErrorKindNone {
		return kind
	}
	return ErrorKindItem
}
