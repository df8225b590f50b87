package main

import (
	"strconv"
	"strings"

	"github.com/torosent/vuload/internal/metrics"
)

func annotateStatus(meta *metrics.RequestMetadata, status string) *metrics.RequestMetadata {
	if meta == nil {
		meta = &metrics.RequestMetadata{}
	}
	meta.StatusCode = sanitizeStatusCode(status)
	return meta
}

func httpStatus(code int) string {
	return strconv.Itoa(code)
}

var statusReplacer = strings.NewReplacer(" ", "_", "/", "_", ".", "_", "-", "_", "(", "", ")", "")

// sanitizeStatusCode turns a label into an upper snake case status bucket.
func sanitizeStatusCode(status string) string {
	normalized := strings.Trim(strings.ToUpper(statusReplacer.Replace(strings.TrimSpace(status))), "_")
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

// fallbackStatusCode labels a request that got no HTTP response.
func fallbackStatusCode(err error) string {
	if err == nil {
		return ""
	}
	return sanitizeStatusCode(metrics.ErrorLabel(err))
}
