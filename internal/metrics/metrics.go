// Package metrics provides Prometheus metrics for the kiosk payment core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No session ids in labels.

var (
	// SessionOutcomeTotal counts sessions that reached a terminal state, by outcome.
	SessionOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_session_outcome_total",
		Help: "Total number of payment sessions by terminal outcome.",
	}, []string{"outcome"})

	// SessionsSubmittedTotal counts charge submissions.
	SessionsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_sessions_submitted_total",
		Help: "Total number of payment sessions submitted.",
	})

	// QueueDepth tracks sessions waiting for the device.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_queue_depth",
		Help: "Number of payment sessions queued behind the active one.",
	})

	// ActiveSession is 1 while a session owns the device.
	ActiveSession = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_active_session",
		Help: "1 while a payment session is awaiting the device, else 0.",
	})

	// DeviceLinesTotal counts decoded device lines by event kind.
	DeviceLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_device_lines_total",
		Help: "Total number of lines received from the device, by decoded kind.",
	}, []string{"kind"})

	// DeviceDecodeErrorsTotal counts PAID lines that could not be parsed.
	DeviceDecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_device_decode_errors_total",
		Help: "Total number of device lines that looked like a PAID report but could not be parsed.",
	})

	// LinkFailuresTotal counts link errors by operation.
	LinkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiosk_link_failures_total",
		Help: "Total number of device link failures, by operation.",
	}, []string{"op"})

	// LinkReconnectsTotal counts successful reopenings of the serial port.
	LinkReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_link_reconnects_total",
		Help: "Total number of times the device link was reopened after a failure.",
	})

	// LinkConnected is 1 while the serial port is open.
	LinkConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiosk_link_connected",
		Help: "1 while the device link is connected, else 0.",
	})

	// ChargeDuration observes time from submission to result, by outcome.
	ChargeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kiosk_charge_duration_seconds",
		Help:    "Time from charge submission to outcome.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300, 600},
	}, []string{"outcome"})

	// SettleFailuresTotal counts confirmed payments that could not be recorded.
	SettleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiosk_settle_failures_total",
		Help: "Total number of confirmed payments whose record could not be stored.",
	})
)

// BoolGauge converts a flag into a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
