package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько заняла вся цепочка gate + действие
	GateDuration *prometheus.HistogramVec

	// Traffic/Errors: решения шлюза по исходам
	GateDecisions *prometheus.CounterVec

	// Saturation: глобальный рубильник (0 - работаем, 1 - стоп)
	GlobalKillActive prometheus.Gauge

	// Admission Limiter: allowed / denied / fail_open
	AdmissionDecisions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - без регистратора метрики уходят в локальный реестр
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		GateDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guard_gate_duration_seconds",
			Help:    "Histogram of gated action latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"system", "outcome"}),

		GateDecisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guard_gate_decisions_total",
			Help: "Total gate decisions by outcome.",
		}, []string{"system", "outcome"}), // исходы: allowed, blocked, denied, approval_required, rate_limited, spend_limited, failed

		GlobalKillActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "guard_global_kill_active",
			Help: "Whether the global kill switch is engaged (0/1).",
		}),

		AdmissionDecisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "guard_admission_decisions_total",
			Help: "Admission limiter decisions.",
		}, []string{"outcome"}),
	}
}
