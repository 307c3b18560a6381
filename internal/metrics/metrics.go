// Package metrics provides Prometheus metrics for process supervision and
// the WebSocket channel. Labels never carry session ids or URLs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProcessStartTotal counts start attempts by result (ok, spawn_error, already_running).
	ProcessStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voidstream_process_start_total",
		Help: "Total number of download process start attempts, by result.",
	}, []string{"result"})

	// ProcessExitTotal counts finished runs by reason (completed, failed, stopped, read_error).
	ProcessExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voidstream_process_exit_total",
		Help: "Total number of download process exits, by reason.",
	}, []string{"reason"})

	// ProcessTerminateTotal counts termination signals by signal and outcome.
	ProcessTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voidstream_process_terminate_total",
		Help: "Total number of termination attempts, by signal and result.",
	}, []string{"signal", "result"})

	ActiveProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voidstream_active_processes",
		Help: "Current number of supervised download processes.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voidstream_ws_connections",
		Help: "Current number of open WebSocket connections.",
	})

	// WSCommandsTotal counts inbound client commands by action (unknown and malformed included).
	WSCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voidstream_ws_commands_total",
		Help: "Total number of client commands received, by action.",
	}, []string{"action"})

	RelayLinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voidstream_relay_lines_total",
		Help: "Total number of subprocess output lines relayed.",
	})
)

// IncStart records a start attempt.
func IncStart(result string) {
	ProcessStartTotal.WithLabelValues(result).Inc()
}

// IncExit records a finished run.
func IncExit(reason string) {
	ProcessExitTotal.WithLabelValues(reason).Inc()
}

// IncTerminate records a termination attempt.
func IncTerminate(signal, result string) {
	ProcessTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncCommand records an inbound client command.
func IncCommand(action string) {
	WSCommandsTotal.WithLabelValues(action).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
