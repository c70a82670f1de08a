/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

// Package metrics counts and times requests with Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/openziti/xapp"
	"github.com/openziti/xapp/transaction"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MixinName        = "metrics"
	DefaultNamespace = "xapp"

	OutcomeOK        = "ok"
	OutcomeHTTPError = "http_error"
	OutcomeFault     = "fault"

	startField = "metrics.start"
)

// NewRegistry creates a registry holding the process and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return registry
}

// Handler exposes the metrics of registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Mixin records the number, outcome and duration of requests and the requests in flight. A request ends with outcome
// "fault" when it failed with an error, "http_error" when it was answered with a status of 400 or above and "ok"
// otherwise.
type Mixin struct {
	xapp.MixinBase

	// Registry defaults to a new registry from NewRegistry.
	Registry  *prometheus.Registry
	Namespace string

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var _ xapp.Mixin = (*Mixin)(nil)

func (mixin *Mixin) Name() string {
	return MixinName
}

func (mixin *Mixin) Construct(app *xapp.Application) error {
	if mixin.Registry == nil {
		mixin.Registry = NewRegistry()
	}

	if mixin.Namespace == "" {
		mixin.Namespace = DefaultNamespace
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: mixin.Namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of requests handled, by outcome.",
	}, []string{"method", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: mixin.Namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of requests, by outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
	}, []string{"outcome"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: mixin.Namespace,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Current number of requests in flight.",
	})

	var err error
	if mixin.requests, err = register(mixin.Registry, requests); err != nil {
		return err
	}
	if mixin.duration, err = register(mixin.Registry, duration); err != nil {
		return err
	}
	if mixin.inFlight, err = register(mixin.Registry, inFlight); err != nil {
		return err
	}
	return nil
}

// register registers collector, reusing an identical collector registered by another application.
func register[C prometheus.Collector](registry prometheus.Registerer, collector C) (C, error) {
	if err := registry.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return collector, errors.Wrap(err, "error registering request metrics")
	}
	return collector, nil
}

func (mixin *Mixin) Enter(env *xapp.Environment) error {
	mixin.inFlight.Inc()
	env.Local().Set(startField, time.Now())
	return nil
}

// Exit records the request. When the request has an active transaction the request is recorded after the transaction
// finishes, and a commit that fails turns the outcome into "fault". A doomed transaction keeps the outcome.
func (mixin *Mixin) Exit(env *xapp.Environment, fault error) (bool, error) {
	mixin.inFlight.Dec()
	outcome := Outcome(env.Response(), fault)

	if manager, err := transaction.ManagerFor(env); err == nil {
		if notifier, ok := manager.(completionNotifier); ok {
			doomed := manager.IsDoomed()
			err := notifier.AfterCompletion(func(committed bool) {
				if !committed && !doomed && fault == nil {
					mixin.record(env, OutcomeFault)
					return
				}
				mixin.record(env, outcome)
			})
			if err == nil {
				return false, nil
			}
		}
	}

	mixin.record(env, outcome)
	return false, nil
}

type completionNotifier interface {
	AfterCompletion(hook func(committed bool)) error
}

func (mixin *Mixin) record(env *xapp.Environment, outcome string) {
	mixin.requests.WithLabelValues(env.Request().Method, outcome).Inc()

	if value, found := env.Local().Lookup(startField); found {
		mixin.duration.WithLabelValues(outcome).Observe(time.Since(value.(time.Time)).Seconds())
	}
}

// Outcome classifies a finished request.
func Outcome(response *xapp.Response, fault error) string {
	if fault != nil {
		return OutcomeFault
	}

	if response != nil && response.StatusCode >= http.StatusBadRequest {
		return OutcomeHTTPError
	}
	return OutcomeOK
}
