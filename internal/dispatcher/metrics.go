package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	state     *prometheus.GaugeVec
	started   prometheus.Counter
	finalized prometheus.Counter
	ignored   *prometheus.CounterVec
	errors    *prometheus.CounterVec
}

// newMetrics registers the dispatcher collectors with reg. A nil reg leaves
// them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ghostrec",
			Name:      "state",
			Help:      "1 for the current dispatcher state, 0 otherwise",
		}, []string{"state"}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostrec",
			Name:      "sessions_started_total",
			Help:      "Recording sessions whose capture process was spawned",
		}),
		finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ghostrec",
			Name:      "sessions_finalized_total",
			Help:      "Recordings moved into the output directory",
		}),
		ignored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghostrec",
			Name:      "commands_ignored_total",
			Help:      "Commands consumed as no-ops because they did not apply to the current state",
		}, []string{"command"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ghostrec",
			Name:      "errors_total",
			Help:      "Session errors by kind",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(m.state, m.started, m.finalized, m.ignored, m.errors)
	}
	return m
}

func (m *metrics) setState(current State) {
	for _, s := range []State{StateIdle, StateRecording, StatePaused, StateTerminated} {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}
}
