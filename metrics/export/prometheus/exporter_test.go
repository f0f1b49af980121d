package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/magiccode"
)

type fakeSource struct {
	snapshot magiccode.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() magiccode.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: magiccode.MetricsSnapshot{
			Counters:   map[magiccode.MetricID]uint64{},
			Histograms: map[magiccode.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: magiccode.MetricsSnapshot{
			Counters: map[magiccode.MetricID]uint64{
				magiccode.MetricVerifySuccess: 7,
			},
			Histograms: map[magiccode.MetricID][]uint64{
				magiccode.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE magiccode_outcomes_total counter",
		`magiccode_outcomes_total{operation="verify",outcome="success"} 7`,
		`magiccode_outcomes_total{operation="issue",outcome="success"} 0`,
		`magiccode_requests_total{operation="issue"} 0`,
		"magiccode_unknown_action_total 0",
		"# TYPE magiccode_operation_latency_seconds histogram",
		`magiccode_operation_latency_seconds_bucket{operation="verify",le="0.005"} 1`,
		`magiccode_operation_latency_seconds_bucket{operation="verify",le="+Inf"} 36`,
		`magiccode_operation_latency_seconds_count{operation="verify"} 36`,
		`magiccode_operation_latency_seconds_count{operation="issue"} 0`,
		"magiccode_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "# TYPE magiccode_outcomes_total"); n != 1 {
		t.Fatalf("expected a single header per family, got %d", n)
	}
}

func TestRenderOmitsHistogramsWhenLatencyDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: magiccode.MetricsSnapshot{
			Counters:   map[magiccode.MetricID]uint64{magiccode.MetricIssueRequest: 1},
			Histograms: map[magiccode.MetricID][]uint64{},
		},
	})

	out := exp.Render()
	if strings.Contains(out, "latency") {
		t.Fatalf("expected no latency series, got:\n%s", out)
	}
	if !strings.Contains(out, `magiccode_requests_total{operation="issue"} 1`) {
		t.Fatalf("missing request series:\n%s", out)
	}
}

func TestEscapeLabel(t *testing.T) {
	if got := escapeLabel("a\"b\\c\nd"); got != `a\"b\\c\nd` {
		t.Fatalf("unexpected escape %q", got)
	}
}

func TestHandlerServesLiveEngine(t *testing.T) {
	cfg := magiccode.DefaultConfig()
	cfg.Secret = "0123456789abcdef"
	engine, err := magiccode.New().
		WithConfig(cfg).
		WithSender(func(context.Context, magiccode.Record, int, magiccode.Options) error { return nil }).
		WithVerifier(func(context.Context, magiccode.Record, magiccode.Options) (any, error) { return nil, nil }).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Issue(context.Background(), magiccode.Record{"email": "a@b.com"}, magiccode.Options{}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := httptest.NewRecorder()
	NewPrometheusExporter(engine).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `magiccode_outcomes_total{operation="issue",outcome="success"} 1`) {
		t.Fatalf("unexpected response %d:\n%s", rec.Code, rec.Body.String())
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: magiccode.MetricsSnapshot{
			Counters: map[magiccode.MetricID]uint64{
				magiccode.MetricIssueRequest:  1000,
				magiccode.MetricIssueSuccess:  990,
				magiccode.MetricVerifyRequest: 900,
				magiccode.MetricVerifySuccess: 850,
				magiccode.MetricVerifyFailure: 50,
			},
			Histograms: map[magiccode.MetricID][]uint64{
				magiccode.MetricVerifyLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
