// Package metrics exposes prometheus collectors for the event bus and the
// emulator watcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	// EventsPublished counts Publish calls by event type
	EventsPublished *prometheus.CounterVec
	// SubscriberFailures counts callbacks that returned an error or panicked
	SubscriberFailures *prometheus.CounterVec
	// Frames counts emulated frames
	Frames prometheus.Counter
	// Polls counts detection passes by outcome ("ok", "failed")
	Polls *prometheus.CounterVec
}

// New builds a private registry so tests and multiple apps don't collide on
// the default one.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gbstats_events_published_total",
				Help: "Events published on the bus",
			},
			[]string{"type"},
		),
		SubscriberFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gbstats_subscriber_failures_total",
				Help: "Subscriber callbacks that failed",
			},
			[]string{"type", "reason"},
		),
		Frames: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gbstats_frames_total",
				Help: "Emulated frames",
			},
		),
		Polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gbstats_polls_total",
				Help: "Memory polling passes",
			},
			[]string{"outcome"},
		),
	}
	m.Registry.MustRegister(m.EventsPublished, m.SubscriberFailures, m.Frames, m.Polls)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
