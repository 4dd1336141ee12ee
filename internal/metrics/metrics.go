// Copyright 2015-2017 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the dispatcher's operational counters as
// Prometheus collectors. It replaces the teacher's hand-rolled atomic
// map (log/Metric.go, since removed from the tree) with the same
// library trivago/gollum itself depends on for metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups every counter/gauge the dispatcher and rotation engine
// update. A nil *Registry is safe to use: every method becomes a no-op, so
// components can be constructed without wiring metrics in tests.
type Registry struct {
	QueueDepth      prometheus.Gauge
	EventsSubmitted prometheus.Counter
	EventsDropped   prometheus.Counter
	EventsHandled   prometheus.Counter
	HandlerFaults   *prometheus.CounterVec
	FilesFinalized  prometheus.Counter
	FilesForgotten  prometheus.Counter
	HousekeepingRun prometheus.Counter
}

// NewRegistry builds a Registry and registers its collectors with reg. If
// reg is nil, prometheus.DefaultRegisterer is used.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Registry{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ckmon",
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Number of messages currently queued for the dispatcher worker.",
		}),
		EventsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ckmon", Subsystem: "dispatch", Name: "events_submitted_total",
			Help: "Total events successfully submitted to the dispatcher queue.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ckmon", Subsystem: "dispatch", Name: "events_dropped_total",
			Help: "Total events that could not be submitted (queue closed).",
		}),
		EventsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ckmon", Subsystem: "dispatch", Name: "events_handled_total",
			Help: "Total events that passed the filter and were dispatched to the handler list.",
		}),
		HandlerFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ckmon", Subsystem: "dispatch", Name: "handler_faults_total",
			Help: "Total handler faults by handler identity, leading to deactivation.",
		}, []string{"handler"}),
		FilesFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ckmon", Subsystem: "rotation", Name: "files_finalized_total",
			Help: "Total rotated files successfully finalized.",
		}),
		FilesForgotten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ckmon", Subsystem: "rotation", Name: "files_forgotten_total",
			Help: "Total rotations discarded (forgotten or empty).",
		}),
		HousekeepingRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ckmon", Subsystem: "rotation", Name: "housekeeping_runs_total",
			Help: "Total housekeeping passes executed.",
		}),
	}

	reg.MustRegister(r.QueueDepth, r.EventsSubmitted, r.EventsDropped, r.EventsHandled,
		r.HandlerFaults, r.FilesFinalized, r.FilesForgotten, r.HousekeepingRun)
	return r
}

func (r *Registry) setQueueDepth(n int) {
	if r == nil {
		return
	}
	r.QueueDepth.Set(float64(n))
}

func (r *Registry) incSubmitted() {
	if r != nil {
		r.EventsSubmitted.Inc()
	}
}

func (r *Registry) incDropped() {
	if r != nil {
		r.EventsDropped.Inc()
	}
}

func (r *Registry) incHandled() {
	if r != nil {
		r.EventsHandled.Inc()
	}
}

func (r *Registry) incHandlerFault(identity string) {
	if r != nil {
		r.HandlerFaults.WithLabelValues(identity).Inc()
	}
}

func (r *Registry) incFinalized() {
	if r != nil {
		r.FilesFinalized.Inc()
	}
}

func (r *Registry) incForgotten() {
	if r != nil {
		r.FilesForgotten.Inc()
	}
}

func (r *Registry) incHousekeepingRun() {
	if r != nil {
		r.HousekeepingRun.Inc()
	}
}

// SetQueueDepth records the current queue depth. Exported wrapper so
// callers outside this package (dispatch) never need a nil check.
func (r *Registry) SetQueueDepth(n int) { r.setQueueDepth(n) }

// IncEventsSubmitted records a successful submission.
func (r *Registry) IncEventsSubmitted() { r.incSubmitted() }

// IncEventsDropped records a submission rejected post-shutdown.
func (r *Registry) IncEventsDropped() { r.incDropped() }

// IncEventsHandled records an event that reached handler dispatch.
func (r *Registry) IncEventsHandled() { r.incHandled() }

// IncHandlerFault records a handler fault for the named handler identity.
func (r *Registry) IncHandlerFault(identity string) { r.incHandlerFault(identity) }

// IncFilesFinalized records a successfully finalized rotation.
func (r *Registry) IncFilesFinalized() { r.incFinalized() }

// IncFilesForgotten records a forgotten/empty rotation.
func (r *Registry) IncFilesForgotten() { r.incForgotten() }

// IncHousekeepingRun records a completed housekeeping pass.
func (r *Registry) IncHousekeepingRun() { r.incHousekeepingRun() }
