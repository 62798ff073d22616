package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authclient.MetricsSnapshot
	AuditDropped() uint64
}

// series is one counter observed on a family instrument under fixed
// attributes. The option is built once, at registration.
type series struct {
	id   authclient.MetricID
	attr metric.ObserveOption
}

type family struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

// OTelExporter publishes client metrics through observable instruments,
// one instrument per metric family, read in a single callback per
// collection.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	families     []family
	latencyLE    metric.Int64ObservableGauge
	latencyCount metric.Int64ObservableGauge
	leAttrs      []metric.ObserveOption
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from client.
func NewOTelExporter(meter metric.Meter, client *authclient.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

// NewOTelExporterFromSource is NewOTelExporter over any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		fam := family{instrument: ins, series: make([]series, 0, len(def.Series))}
		for _, s := range def.Series {
			fam.series = append(fam.series, series{id: s.ID, attr: attributes(s.Labels)})
		}
		e.families = append(e.families, fam)
		observables = append(observables, ins)
	}

	if err := e.registerLatency(meter); err != nil {
		return nil, err
	}
	observables = append(observables, e.latencyLE, e.latencyCount)

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

// registerLatency creates the cumulative bucket gauge, labelled by le, and
// the sample count gauge.
func (e *OTelExporter) registerLatency(meter metric.Meter) error {
	def := internaldefs.RequestLatency

	le, err := meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per upper bound."))
	if err != nil {
		return fmt.Errorf("create latency bucket gauge: %w", err)
	}
	count, err := meter.Int64ObservableGauge(def.Name+"_count",
		metric.WithDescription(def.Help+" Total samples."))
	if err != nil {
		return fmt.Errorf("create latency count gauge: %w", err)
	}

	e.latencyLE = le
	e.latencyCount = count
	e.leAttrs = make([]metric.ObserveOption, len(internaldefs.HistogramBounds))
	for i, bound := range internaldefs.HistogramBounds {
		e.leAttrs[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", bound)))
	}
	return nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, fam := range e.families {
		for _, s := range fam.series {
			o.ObserveInt64(fam.instrument, int64(snapshot.Counters[s.id]), s.attr)
		}
	}

	buckets := internaldefs.LatencyBuckets(snapshot)
	for i, v := range buckets {
		o.ObserveInt64(e.latencyLE, int64(v), e.leAttrs[i])
	}
	o.ObserveInt64(e.latencyCount, int64(buckets[len(buckets)-1]))

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func attributes(labels []internaldefs.Label) metric.ObserveOption {
	kvs := make([]attribute.KeyValue, 0, len(labels))
	for _, l := range labels {
		kvs = append(kvs, attribute.String(l.Name, l.Value))
	}
	return metric.WithAttributeSet(attribute.NewSet(kvs...))
}

// Close unregisters the callback. Instruments stay registered with the meter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
