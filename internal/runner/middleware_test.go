package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/torosent/vuload/internal/runner"
)

type stubRequester struct{ err error }

func (s stubRequester) Do(context.Context) error { return s.err }

type recordingLogger struct{ errs []error }

func (r *recordingLogger) LogFailure(_ context.Context, err error) { r.errs = append(r.errs, err) }

func TestWithLoggingOnlyLogsFailures(t *testing.T) {
	logger := &recordingLogger{}

	if err := runner.WithLogging(stubRequester{}, logger).Do(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logger.errs) != 0 {
		t.Fatalf("success was logged: %v", logger.errs)
	}

	failure := &runner.HTTPError{StatusCode: 503, Body: "unavailable"}
	err := runner.WithLogging(stubRequester{err: failure}, logger).Do(context.Background())
	var httpErr *runner.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 503 {
		t.Fatalf("error not passed through: %v", err)
	}
	if len(logger.errs) != 1 {
		t.Fatalf("expected 1 logged failure, got %d", len(logger.errs))
	}
}

func TestWithLoggingNilLogger(t *testing.T) {
	req := stubRequester{}
	if got := runner.WithLogging(req, nil); got != runner.Requester(req) {
		t.Fatalf("expected requester unchanged")
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	if got := (&runner.HTTPError{StatusCode: 500}).Error(); got != "HTTP 500" {
		t.Fatalf("Error() = %q", got)
	}
	if got := (&runner.HTTPError{StatusCode: 404, Body: "Member not found"}).Error(); got != "HTTP 404: Member not found" {
		t.Fatalf("Error() = %q", got)
	}
}
