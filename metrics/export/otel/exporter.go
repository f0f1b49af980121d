package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/magiccode"
	"github.com/MrEthical07/magiccode/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Construction errors.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() magiccode.MetricsSnapshot
	AuditDropped() uint64
}

type observedSeries struct {
	id         magiccode.MetricID
	instrument metric.Int64ObservableCounter
	attrs      metric.MeasurementOption
}

type observedHistogram struct {
	id      magiccode.MetricID
	buckets [8]metric.MeasurementOption
	count   metric.MeasurementOption
}

// OTelExporter publishes engine metrics as observable OTel instruments.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	series       []observedSeries
	histograms   []observedHistogram
	bucketGauge  metric.Int64ObservableGauge
	countGauge   metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *magiccode.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments on meter that read from source
// on every collection.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source: source,
		series: make([]observedSeries, 0, len(internaldefs.CounterDefs)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.Families)+3)

	for _, family := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(family.Name, metric.WithDescription(family.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", family.Name, err)
		}
		observables = append(observables, ins)
		for _, def := range internaldefs.SeriesFor(family.Name) {
			exporter.series = append(exporter.series, observedSeries{
				id:         def.ID,
				instrument: ins,
				attrs:      metric.WithAttributeSet(attributesOf(def.Labels...)),
			})
		}
	}

	bucketGauge, err := meter.Int64ObservableGauge(
		internaldefs.LatencyName+"_bucket",
		metric.WithDescription("Cumulative latency bucket count."),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency bucket gauge: %w", err)
	}
	countGauge, err := meter.Int64ObservableGauge(
		internaldefs.LatencyName+"_count",
		metric.WithDescription(internaldefs.LatencyHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	exporter.bucketGauge = bucketGauge
	exporter.countGauge = countGauge
	observables = append(observables, bucketGauge, countGauge)

	for _, def := range internaldefs.HistogramDefs {
		opLabel := internaldefs.Label{Key: internaldefs.LabelOperation, Value: def.Operation}
		h := observedHistogram{
			id:    def.ID,
			count: metric.WithAttributeSet(attributesOf(opLabel)),
		}
		for i, le := range internaldefs.HistogramBounds {
			h.buckets[i] = metric.WithAttributeSet(attributesOf(opLabel, internaldefs.Label{Key: "le", Value: le}))
		}
		exporter.histograms = append(exporter.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, s := range e.series {
		observer.ObserveInt64(s.instrument, int64(snapshot.Counters[s.id]), s.attrs)
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, attrs := range h.buckets {
			observer.ObserveInt64(e.bucketGauge, int64(cumulative[i]), attrs)
		}
		observer.ObserveInt64(e.countGauge, int64(cumulative[len(cumulative)-1]), h.count)
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

func attributesOf(labels ...internaldefs.Label) attribute.Set {
	kvs := make([]attribute.KeyValue, 0, len(labels))
	for _, l := range labels {
		kvs = append(kvs, attribute.String(l.Key, l.Value))
	}
	return attribute.NewSet(kvs...)
}
