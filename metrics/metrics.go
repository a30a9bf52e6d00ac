// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports Prometheus metrics about client executions.
//
// A Collector is an event handler. Install it into the handler group of
// a client:
//
//	handlers := &reqx.HandlerGroup{}
//	metrics.NewCollector(prometheus.DefaultRegisterer).Install(handlers)
//	client := &reqx.Client{Handlers: handlers}
package metrics

import (
	"errors"
	"strconv"

	"github.com/gogama/reqx"
	"github.com/gogama/reqx/request"
	"github.com/gogama/reqx/transient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "reqx"

// Outcome label values besides the transient error categories.
const (
	OutcomeOK         = "ok"
	OutcomeSuperseded = "superseded"
	OutcomeStatus     = "status"
	OutcomePanic      = "panic"
	OutcomeError      = "error"
)

// inFlightKey marks an execution counted in the in-flight gauge of
// collector c.
type inFlightKey struct {
	c *Collector
}

// A Collector records executions as Prometheus metrics. It is safe for
// concurrent use.
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	attemptsTotal    *prometheus.CounterVec
	attemptTimeouts  *prometheus.CounterVec
	supersededTotal  *prometheus.CounterVec
}

// NewCollector creates a collector whose metrics are registered with
// reg. A nil reg means prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "requests_total",
				Help:      "Total number of executions, by method, final status code and outcome",
			},
			[]string{"method", "code", "outcome"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of executions in seconds, including retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		requestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "requests_in_flight",
				Help:      "Number of executions currently in flight",
			},
		),
		attemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "attempts_total",
				Help:      "Total number of HTTP request attempts",
			},
			[]string{"method"},
		),
		attemptTimeouts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "attempt_timeouts_total",
				Help:      "Total number of HTTP request attempts which timed out",
			},
			[]string{"method"},
		),
		supersededTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "superseded_total",
				Help:      "Total number of in-flight executions canceled by a duplicate request",
			},
			[]string{"method"},
		),
	}
}

// Install adds c to the handler chains of the events it records.
func (c *Collector) Install(g *reqx.HandlerGroup) {
	for _, evt := range []reqx.Event{
		reqx.BeforeExecutionStart,
		reqx.AfterSupersede,
		reqx.BeforeAttempt,
		reqx.AfterAttemptTimeout,
		reqx.AfterExecutionEnd,
	} {
		g.PushBack(evt, c)
	}
}

// Handle records evt. It implements reqx.Handler.
func (c *Collector) Handle(evt reqx.Event, e *request.Execution) {
	method := methodOf(e)
	switch evt {
	case reqx.BeforeExecutionStart:
		e.SetValue(inFlightKey{c}, true)
		c.requestsInFlight.Inc()
	case reqx.AfterSupersede:
		c.supersededTotal.WithLabelValues(method).Inc()
	case reqx.BeforeAttempt:
		c.attemptsTotal.WithLabelValues(method).Inc()
	case reqx.AfterAttemptTimeout:
		c.attemptTimeouts.WithLabelValues(method).Inc()
	case reqx.AfterExecutionEnd:
		if e.Value(inFlightKey{c}) != nil {
			e.SetValue(inFlightKey{c}, nil)
			c.requestsInFlight.Dec()
		}
		c.requestDuration.WithLabelValues(method).Observe(e.Duration().Seconds())
		c.requestsTotal.WithLabelValues(method, strconv.Itoa(e.StatusCode()), Outcome(e)).Inc()
	}
}

// Outcome classifies an ended execution for the outcome label:
// OutcomeOK, OutcomeSuperseded, OutcomeStatus for a rejected status
// code, OutcomePanic, the name of the transient category of the error
// (for example "timeout" or "canceled"), or OutcomeError.
func Outcome(e *request.Execution) string {
	if e.Err == nil {
		return OutcomeOK
	}
	if e.Superseded() {
		return OutcomeSuperseded
	}
	if errors.Is(e.Err, reqx.ErrPanicked) {
		return OutcomePanic
	}
	var statusErr *reqx.StatusError
	if errors.As(e.Err, &statusErr) {
		return OutcomeStatus
	}
	if c := transient.Categorize(e.Err); c != transient.Not {
		return c.String()
	}
	return OutcomeError
}

func methodOf(e *request.Execution) string {
	if e.Plan == nil || e.Plan.Method == "" {
		return "GET"
	}
	return e.Plan.Method
}
