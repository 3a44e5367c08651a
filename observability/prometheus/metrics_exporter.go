package prometheus

import (
	"github.com/WenchaoChen/libten/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter adapts core.Metrics to Prometheus collectors. Install it
// through the scheduler config:
//
//	exp, _ := prometheus.NewMetricsExporter("", nil)
//	libten.MainWithConfig(entry, libten.Config{Metrics: exp})
type MetricsExporter struct {
	tasksSpawnedTotal  *prom.CounterVec
	tasksFinishedTotal *prom.CounterVec
	timerWakesTotal    prom.Counter
	pollWakesTotal     prom.Counter
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for
// core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "libten"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	spawnedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_spawned_total",
		Help:      "Total number of tasks spawned.",
	}, []string{"kind"})
	finishedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_finished_total",
		Help:      "Total number of tasks finished.",
	}, []string{"outcome"})
	timerWakes := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "timer_wakes_total",
		Help:      "Total number of tasks woken by a due timer.",
	})
	pollWakes := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "poll_wakes_total",
		Help:      "Total number of tasks woken by fd readiness.",
	})

	for _, c := range []prom.Collector{spawnedVec, finishedVec, timerWakes, pollWakes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &MetricsExporter{
		tasksSpawnedTotal:  spawnedVec,
		tasksFinishedTotal: finishedVec,
		timerWakesTotal:    timerWakes,
		pollWakesTotal:     pollWakes,
	}, nil
}

func (e *MetricsExporter) RecordSpawn(system bool) {
	kind := "user"
	if system {
		kind = "system"
	}
	e.tasksSpawnedTotal.WithLabelValues(kind).Inc()
}

func (e *MetricsExporter) RecordFinish(interrupted bool) {
	outcome := "returned"
	if interrupted {
		outcome = "interrupted"
	}
	e.tasksFinishedTotal.WithLabelValues(outcome).Inc()
}

func (e *MetricsExporter) RecordTimerFired() { e.timerWakesTotal.Inc() }
func (e *MetricsExporter) RecordPollWake()   { e.pollWakesTotal.Inc() }
