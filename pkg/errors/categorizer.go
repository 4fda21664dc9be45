package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Error code constants
const (
	CodeUnknown = "UNKNOWN_ERROR"
	CodeTimeout = "TIMEOUT_ERROR"
	CodeNetwork = "NETWORK_ERROR"
	CodeParse   = "PARSE_ERROR"
	CodeConfig  = "CONFIGURATION_ERROR"
	CodeEmit    = "EMIT_ERROR"
	CodeLoad    = "LOAD_ERROR"
	CodeStorage = "STORAGE_ERROR"
	CodePublish = "PUBLISH_ERROR"
)

// Categorize maps an error to a standardized error code
func Categorize(err error) string {
	if err == nil {
		return ""
	}

	var structured *Error
	if errors.As(err, &structured) && structured.Code != "" {
		return structured.Code
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return CodeParse
	case errors.Is(err, ErrInvalidConfig):
		return CodeConfig
	case errors.Is(err, ErrOutputUnwritable):
		return CodeEmit
	case errors.Is(err, ErrLoadFailed):
		return CodeLoad
	case errors.Is(err, ErrUploadFailed):
		return CodeStorage
	case errors.Is(err, ErrPublishFailed):
		return CodePublish
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeNetwork
	}

	// Fall back to message patterns for errors from external systems
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return CodeTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		return CodeNetwork
	case strings.Contains(msg, "parse") || strings.Contains(msg, "unmarshal") || strings.Contains(msg, "invalid json"):
		return CodeParse
	}

	return CodeUnknown
}
