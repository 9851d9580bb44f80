package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrorType is the failure taxonomy used across the pipeline.
type ErrorType string

const (
	TypeValidation ErrorType = "validation"
	TypeNetwork    ErrorType = "network"
	TypeRateLimit  ErrorType = "rate_limit"
	TypeDatabase   ErrorType = "database"
	TypePermission ErrorType = "permission"
	TypeUnknown    ErrorType = "unknown"
)

var networkMarkers = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"timeout",
	"timed out",
	"no such host",
	"network is unreachable",
}

var rateLimitMarkers = []string{
	"rate limit",
	"quota",
	"too many requests",
	"429",
}

var databaseMarkers = []string{
	"database is locked",
	"sqlite_busy",
	"internal server error",
	"500",
	"502",
	"503",
}

var permissionMarkers = []string{
	"permission denied",
	"unauthorized",
	"forbidden",
}

var validationMarkers = []string{
	"natural key",
	"validation",
	"malformed",
	"invalid",
}

// Classify maps an error onto the taxonomy. HTTP-aware errors from the
// Google API client are classified by status code; everything else falls
// back to message inspection.
func Classify(err error) ErrorType {
	if err == nil {
		return TypeUnknown
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 429:
			return TypeRateLimit
		case gerr.Code == 401 || gerr.Code == 403:
			return TypePermission
		case gerr.Code >= 500:
			return TypeDatabase
		case gerr.Code >= 400:
			return TypeValidation
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return TypeNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return TypeNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range validationMarkers {
		if strings.Contains(msg, marker) {
			return TypeValidation
		}
	}
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return TypeRateLimit
		}
	}
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return TypeNetwork
		}
	}
	for _, marker := range permissionMarkers {
		if strings.Contains(msg, marker) {
			return TypePermission
		}
	}
	for _, marker := range databaseMarkers {
		if strings.Contains(msg, marker) {
			return TypeDatabase
		}
	}
	return TypeUnknown
}

// IsRetryable reports whether a failure class is worth retrying.
// Validation, permission and unknown failures abort immediately.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case TypeNetwork, TypeRateLimit, TypeDatabase:
		return true
	default:
		return false
	}
}
