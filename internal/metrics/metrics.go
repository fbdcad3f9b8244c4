// Package metrics holds the prometheus collectors and the use-case
// instrumentation helper shared by the services.
package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
)

const tracerName = "github.com/ariefcatur/go-storefront-core"

type Metrics struct {
	usecaseRequests     *prometheus.CounterVec
	usecaseDuration     *prometheus.HistogramVec
	reservationFailures *prometheus.CounterVec
	externalRequests    *prometheus.CounterVec
	externalDuration    *prometheus.HistogramVec
	tracer              trace.Tracer
}

// New registers the collectors on reg. Passing nil keeps them unregistered,
// which is what tests and the nop path use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		usecaseRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usecase_requests_total",
			Help: "Use case executions by outcome.",
		}, []string{"use_case", "outcome"}),
		usecaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usecase_duration_seconds",
			Help:    "Use case latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"use_case"}),
		reservationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_reservation_failures_total",
			Help: "Inventory reservations rejected during checkout.",
		}, []string{"reason"}),
		externalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "external_requests_total",
			Help: "Calls to external collaborators.",
		}, []string{"peer", "endpoint", "outcome"}),
		externalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "external_request_duration_seconds",
			Help:    "Latency of calls to external collaborators.",
			Buckets: prometheus.DefBuckets,
		}, []string{"peer", "endpoint"}),
		tracer: otel.Tracer(tracerName),
	}
	if reg != nil {
		reg.MustRegister(m.usecaseRequests, m.usecaseDuration, m.reservationFailures,
			m.externalRequests, m.externalDuration)
	}
	return m
}

// Nop returns unregistered collectors.
func Nop() *Metrics { return New(nil) }

// Outcome is "success" for nil and the lowercased error kind otherwise.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(apperr.KindOf(err)))
}

// Begin opens the span "UC.<name>" and returns a func that closes it and
// records the RED metrics plus a use_case_done log line.
func (m *Metrics) Begin(ctx context.Context, useCase string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := m.tracer.Start(ctx, "UC."+useCase, trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(err error) {
		lat := time.Since(start)
		outcome := Outcome(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetStatus(codes.Ok, outcome)
		}
		span.End()

		m.usecaseRequests.WithLabelValues(useCase, outcome).Inc()
		m.usecaseDuration.WithLabelValues(useCase).Observe(lat.Seconds())

		fields := []zap.Field{
			zap.String("use_case", useCase),
			zap.String("outcome", outcome),
			zap.Duration("latency", lat),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		logging.FromContext(ctx).Info("use_case_done", fields...)
	}
}

func (m *Metrics) ReservationFailed(reason apperr.Kind) {
	m.reservationFailures.WithLabelValues(strings.ToLower(string(reason))).Inc()
}

// External records one call to peer/endpoint.
func (m *Metrics) External(peer, endpoint string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.externalRequests.WithLabelValues(peer, endpoint, outcome).Inc()
	m.externalDuration.WithLabelValues(peer, endpoint).Observe(time.Since(start).Seconds())
}
