// Package telemetry computes the read-through metrics described in
// spec.md §4.8 over the audit event log — skip rate, confidence
// distribution, suspicious-pattern detection — and additionally exports
// them as Prometheus gauges/counters, grounded on the prometheus wiring
// style in luxfi-consensus's protocol/nova/metrics.go (explicit
// NewGauge/NewCounter + registerer.Register calls, no auto-discovery).
// The exporter is a read-through view over pkg/store.AuditRepo, not a
// second source of truth — this mirrors the distilled spec's own framing
// ("telemetry metrics computed over the audit log, not kept separately").
package telemetry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cirwel/unitares-govcore/pkg/store"
)

// Metrics holds the Prometheus collectors this package exports.
type Metrics struct {
	audit *store.AuditRepo

	skipRate           prometheus.Gauge
	confidenceMean     prometheus.Gauge
	confidenceMedian   prometheus.Gauge
	suspiciousPatterns prometheus.Counter
	verdicts           *prometheus.CounterVec
}

// NewMetrics builds and registers the collectors against reg.
func NewMetrics(audit *store.AuditRepo, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		audit: audit,
		skipRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govcore_confidence_gate_skip_rate",
			Help: "Fraction of recent update cycles where the lambda1 control step was skipped for low confidence.",
		}),
		confidenceMean: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govcore_confidence_mean",
			Help: "Mean reported confidence over the scan window.",
		}),
		confidenceMedian: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "govcore_confidence_median",
			Help: "Median reported confidence over the scan window.",
		}),
		suspiciousPatterns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "govcore_suspicious_confidence_patterns_total",
			Help: "Count of scans that detected a suspicious confidence pattern (e.g. clamped at a bin boundary).",
		}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "govcore_verdicts_total",
			Help: "Governance verdicts observed in the audit log, by verdict.",
		}, []string{"verdict"}),
	}

	for _, c := range []prometheus.Collector{m.skipRate, m.confidenceMean, m.confidenceMedian, m.suspiciousPatterns, m.verdicts} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering telemetry collector: %w", err)
		}
	}
	return m, nil
}

// updateEventPayload is the subset of an "agent.process_update" audit
// event's payload this package reads. pkg/monitor is responsible for
// writing these fields when it emits the event.
type updateEventPayload struct {
	Confidence          float64
	ConfidenceCorrected float64
	LambdaSkipped       bool
	Verdict             string
}

// Report is the computed snapshot over one scan window.
type Report struct {
	SampleCount         int
	SkipRate            float64
	ConfidenceMean      float64
	ConfidenceMedian    float64
	ConfidenceHistogram [10]int // ten 0.1-wide bins, same binning as pkg/calibration
	Suspicious          bool
	SuspiciousReason    string
	VerdictCounts       map[string]int
}

// Scan reads every "agent.process_update" audit event since `since`,
// computes the report, and updates the exported Prometheus collectors.
func (m *Metrics) Scan(ctx context.Context, since time.Time, limit int) (Report, error) {
	events, err := m.audit.SinceByType(ctx, "agent.process_update", since, limit)
	if err != nil {
		return Report{}, fmt.Errorf("telemetry scan: %w", err)
	}

	var confidences []float64
	var report Report
	report.VerdictCounts = make(map[string]int)
	skipped := 0

	for _, ev := range events {
		p := decodePayload(ev.Payload)
		confidences = append(confidences, p.Confidence)
		if p.LambdaSkipped {
			skipped++
		}
		if p.Verdict != "" {
			report.VerdictCounts[p.Verdict]++
		}
		bin := binIndex(p.Confidence)
		report.ConfidenceHistogram[bin]++
	}

	report.SampleCount = len(events)
	if report.SampleCount > 0 {
		report.SkipRate = float64(skipped) / float64(report.SampleCount)
		report.ConfidenceMean = mean(confidences)
		report.ConfidenceMedian = median(confidences)
	}
	report.Suspicious, report.SuspiciousReason = detectSuspiciousPattern(confidences)

	m.skipRate.Set(report.SkipRate)
	m.confidenceMean.Set(report.ConfidenceMean)
	m.confidenceMedian.Set(report.ConfidenceMedian)
	if report.Suspicious {
		m.suspiciousPatterns.Inc()
	}
	for verdict, n := range report.VerdictCounts {
		m.verdicts.WithLabelValues(verdict).Add(float64(n))
	}

	return report, nil
}

func decodePayload(raw map[string]any) updateEventPayload {
	var p updateEventPayload
	if v, ok := raw["confidence"].(float64); ok {
		p.Confidence = v
	}
	if v, ok := raw["confidence_corrected"].(float64); ok {
		p.ConfidenceCorrected = v
	}
	if v, ok := raw["lambda_skipped"].(bool); ok {
		p.LambdaSkipped = v
	}
	if v, ok := raw["verdict"].(string); ok {
		p.Verdict = v
	}
	return p
}

func binIndex(confidence float64) int {
	idx := int(confidence * 10)
	if idx < 0 {
		return 0
	}
	if idx > 9 {
		return 9
	}
	return idx
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// detectSuspiciousPattern flags confidence values clustering suspiciously
// exactly on a bin boundary (spec.md §4.8's named example) — a sign of a
// hardcoded or gamed confidence value rather than a genuine model output.
func detectSuspiciousPattern(xs []float64) (bool, string) {
	if len(xs) < 5 {
		return false, ""
	}
	onBoundary := 0
	for _, x := range xs {
		scaled := x * 10
		if math.Abs(scaled-math.Round(scaled)) < 1e-9 {
			onBoundary++
		}
	}
	if float64(onBoundary)/float64(len(xs)) >= 0.8 {
		return true, "confidence values cluster on exact 0.1 bin boundaries"
	}
	return false, ""
}
