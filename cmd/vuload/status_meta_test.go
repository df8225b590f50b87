package main

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/torosent/vuload/internal/metrics"
)

func TestAnnotateStatus(t *testing.T) {
	got := annotateStatus(nil, httpStatus(200))
	if got == nil || got.StatusCode != "200" {
		t.Fatalf("annotateStatus(nil) = %+v", got)
	}

	meta := &metrics.RequestMetadata{BytesReceived: 10}
	got = annotateStatus(meta, "200 OK")
	if got != meta {
		t.Error("annotateStatus should reuse the given metadata")
	}
	if got.StatusCode != "200_OK" || got.BytesReceived != 10 {
		t.Errorf("unexpected metadata %+v", got)
	}
}

func TestSanitizeStatusCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"200", "200"},
		{"200 OK", "200_OK"},
		{"  error  ", "ERROR"},
		{"invalid/char", "INVALID_CHAR"},
		{"", "UNKNOWN"},
		{"   ", "UNKNOWN"},
		{"-._", "UNKNOWN"},
		{"Error String (errors)", "ERROR_STRING_ERRORS"},
	}

	for _, tt := range tests {
		got := sanitizeStatusCode(tt.input)
		if got != tt.want {
			t.Errorf("sanitizeStatusCode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFallbackStatusCode(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"timeout", context.DeadlineExceeded, "REQUEST_TIMEOUT"},
		{"refused", refused, "CONNECTION_REFUSED"},
		{"custom error", &MyError{}, "MY_ERROR"},
		{"plain error", errors.New("oops"), "ERROR_STRING_ERRORS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fallbackStatusCode(tt.err)
			if got != tt.want {
				t.Errorf("fallbackStatusCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

type MyError struct{}

func (e *MyError) Error() string { return "my error" }
