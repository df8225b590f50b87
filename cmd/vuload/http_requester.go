package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/vuload/internal/check"
	"github.com/torosent/vuload/internal/httpclient"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/runner"
	"github.com/torosent/vuload/internal/tracing"
)

const (
	maxBodyBytes       = 1 << 20
	maxLoggedBodyBytes = 1024
)

// httpRequester sends the single GET of one iteration and records its outcome.
type httpRequester struct {
	client    *http.Client
	builder   *httpclient.RequestBuilder
	collector *metrics.Collector
	checks    []check.Check
	tracer    trace.Tracer
	propagate bool
}

func (r *httpRequester) Do(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	info, _ := runner.VUFromContext(ctx)
	ctx, span := tracing.StartRequestSpan(ctx, r.tracer, http.MethodGet, r.builder.Target(), info.ID, info.Iteration)

	release := r.collector.TrackInFlight()
	defer release()

	start := time.Now()
	req, err := r.builder.Build(ctx)
	if err != nil {
		r.collector.RecordRequest(time.Since(start), err, annotateStatus(nil, fallbackStatusCode(err)))
		tracing.EndSpan(span, 0, err)
		return err
	}
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.finish(ctx, span, time.Since(start), 0, err, annotateStatus(nil, fallbackStatusCode(err)))
		return err
	}

	var body bytes.Buffer
	n, readErr := io.Copy(&body, io.LimitReader(resp.Body, maxBodyBytes))
	rest, _ := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	latency := time.Since(start)

	meta := annotateStatus(&metrics.RequestMetadata{BytesReceived: n + rest}, httpStatus(resp.StatusCode))

	var resultErr error
	switch {
	case readErr != nil:
		resultErr = readErr
	case resp.StatusCode >= 400:
		snippet := body.Bytes()
		if len(snippet) > maxLoggedBodyBytes {
			snippet = snippet[:maxLoggedBodyBytes]
		}
		resultErr = &runner.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if readErr == nil {
		for _, res := range check.EvaluateAll(r.checks, check.Response{StatusCode: resp.StatusCode, Body: body.Bytes()}) {
			r.collector.RecordCheck(res.Name, res.Passed)
		}
	}

	r.finish(ctx, span, latency, resp.StatusCode, resultErr, meta)
	return resultErr
}

// finish records the request unless the run cut it off; the runner counts
// those as interrupted iterations instead.
func (r *httpRequester) finish(ctx context.Context, span trace.Span, latency time.Duration, status int, err error, meta *metrics.RequestMetadata) {
	if err == nil || ctx.Err() == nil {
		r.collector.RecordRequest(latency, err, meta)
	}
	tracing.EndSpan(span, status, err)
}
