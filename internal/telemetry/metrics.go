package telemetry

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/boardsync/boardsync/internal/github"
)

const clientScopeName = instrumentationScope + "/github"

// WrapClient returns c decorated with OTel instrumentation: every outbound
// request is counted in boardsync.api.calls and every backoff wait in
// boardsync.api.retries. When telemetry is disabled, c is returned as-is
// with zero overhead.
func WrapClient(c *github.Client) *github.Client {
	if !Enabled() {
		return c
	}

	m := Meter(clientScopeName)
	calls, _ := m.Int64Counter("boardsync.api.calls",
		metric.WithDescription("Total outbound GitHub API requests"),
	)
	retries, _ := m.Int64Counter("boardsync.api.retries",
		metric.WithDescription("Backoff waits taken before retrying a request"),
	)

	httpClient := http.Client{}
	if c.HTTPClient != nil {
		httpClient = *c.HTTPClient
	}
	httpClient.Transport = &countingTransport{next: httpClient.Transport, calls: calls}

	wrapped := c.WithHTTPClient(&httpClient)
	wrapped.OnRetry = func(attempt int, delay time.Duration) {
		retries.Add(context.Background(), 1,
			metric.WithAttributes(attribute.Int("attempt", attempt)),
		)
	}
	return wrapped
}

// countingTransport counts requests by method and response status.
type countingTransport struct {
	next  http.RoundTripper
	calls metric.Int64Counter
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}

	resp, err := next.RoundTrip(req)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.calls.Add(req.Context(), 1, metric.WithAttributes(
		attribute.String("method", req.Method),
		attribute.Int("status", status),
	))
	return resp, err
}

// RecordReconcileDuration records one reconcile run on the duration
// histogram. The SDK meter returns the same instrument for repeated lookups,
// so per-run creation is cheap.
func RecordReconcileDuration(ctx context.Context, dryRun bool, d time.Duration) {
	if !Enabled() {
		return
	}

	m := Meter(instrumentationScope)
	hist, _ := m.Float64Histogram("boardsync.reconcile.duration",
		metric.WithDescription("Reconcile run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	hist.Record(ctx, float64(d.Milliseconds()),
		metric.WithAttributes(attribute.Bool("dry_run", dryRun)),
	)
}
