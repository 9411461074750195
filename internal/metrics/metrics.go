package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_engine_alerts_created_total",
		Help: "Alerts accepted by the engine, by alert type.",
	}, []string{"alert_type"})

	DispatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_engine_dispatch_attempts_total",
		Help: "Delivery attempts by channel and outcome.",
	}, []string{"channel", "outcome"})

	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert_engine_retries_scheduled_total",
		Help: "Retry attempts scheduled after failed sends.",
	})

	Escalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert_engine_escalations_total",
		Help: "Escalation levels fired.",
	})

	Acknowledgments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert_engine_acknowledgments_total",
		Help: "Acknowledgments recorded.",
	})

	TimerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alert_engine_timer_queue_depth",
		Help: "Scheduled timer items currently queued.",
	})
)

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
