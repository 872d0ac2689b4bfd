// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cruxstack/workerbridge/internal/framework"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workerbridge",
			Name:      "requests_total",
			Help:      "Requests dispatched through the bridge by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workerbridge",
			Name:      "request_duration_seconds",
			Help:      "Time spent normalizing and dispatching a request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the already registered collector when a reloaded Bridge
// registers again with the same registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register bridge metrics: %w", err)
	}
	return c, nil
}

// observe is a no-op on a nil receiver. Failed requests count as 500.
func (m *metrics) observe(method string, resp *framework.Response, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	method = strings.ToUpper(method)
	code := "500"
	if err == nil && resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}
