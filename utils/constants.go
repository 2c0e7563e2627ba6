package utils

import (
	"time"
)

// Request context keys set by handlers before calling into business flows
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Request timeouts
const (
	// DefaultRequestTimeout bounds read-only admin and lookup requests
	DefaultRequestTimeout = 15 * time.Second

	// ImportRequestTimeout bounds a synchronous rate sheet upload
	ImportRequestTimeout = 2 * time.Minute
)

// MoneyScale is the number of decimal places quoted prices are rounded to
const MoneyScale = 2

// StringFromContext reads a string value stored under key, or "".
func StringFromContext(ctx interface{ Value(any) any }, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
