/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "site_agent"

var (
	// Passes counts completed processing passes per offering and lane.
	Passes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "passes_total",
		Help:      "Completed processing passes.",
	}, []string{"offering", "lane"})

	// PassErrors counts failed processing passes per offering and lane.
	PassErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pass_errors_total",
		Help:      "Processing passes that returned an error.",
	}, []string{"offering", "lane"})

	// PassDuration observes pass latency per offering and lane.
	PassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pass_duration_seconds",
		Help:      "Processing pass duration.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"offering", "lane"})

	// OrdersProcessed counts orders driven to a terminal state, labelled
	// by order type and outcome.
	OrdersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_processed_total",
		Help:      "Orders driven to a terminal state.",
	}, []string{"offering", "type", "state"})

	// UsageAnomalies counts rejected usage submissions per offering.
	// These need operator attention, they are never retried.
	UsageAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "usage_anomalies_total",
		Help:      "Usage reports rejected by the anomaly guard.",
	}, []string{"offering"})

	// EventsReceived counts marketplace push notifications per offering
	// and event type.
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_received_total",
		Help:      "Marketplace events received.",
	}, []string{"offering", "event_type"})
)
