package domain

import (
	"fmt"
	"strings"
	"time"
)

// Metric captures one completed request/response exchange for a tenant.
// Records are immutable once created and expire after the retention horizon.
type Metric struct {
	ID            int64
	TenantID      string
	Timestamp     time.Time
	RoutePath     string
	Method        string
	CallerIP      string
	UserAgent     string
	Referer       string
	RequestBytes  *int64
	ResponseBytes *int64
	StatusCode    int
	LatencyMS     float64
	IsError       bool
	ErrorMessage  string
	IngestedAt    time.Time
}

var allowedMethods = map[string]struct{}{
	"GET":     {},
	"POST":    {},
	"PUT":     {},
	"DELETE":  {},
	"PATCH":   {},
	"OPTIONS": {},
	"HEAD":    {},
}

// NormalizeMethod upper-cases the method and reports whether it is one of the
// recorded HTTP verbs.
func NormalizeMethod(method string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(method))
	_, ok := allowedMethods[normalized]
	return normalized, ok
}

// IsErrorStatus reports whether a status code counts as an error record.
func IsErrorStatus(status int) bool {
	return status >= 400
}

// ErrorMessageForStatus derives the stored error message for a status code.
// Empty for non-error statuses.
func ErrorMessageForStatus(status int) string {
	if !IsErrorStatus(status) {
		return ""
	}
	return fmt.Sprintf("HTTP %d", status)
}
