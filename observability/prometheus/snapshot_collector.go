package prometheus

import (
	"github.com/WenchaoChen/libten/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SnapshotCollector exposes point-in-time runtime state (live tasks, user
// tasks, scheduler count) as gauges, scraping core.Stats on Collect.
type SnapshotCollector struct {
	schedulers *prom.Desc
	liveTasks  *prom.Desc
	userTasks  *prom.Desc
}

var _ prom.Collector = (*SnapshotCollector)(nil)

// NewSnapshotCollector creates and registers the gauge collector.
func NewSnapshotCollector(namespace string, reg prom.Registerer) (*SnapshotCollector, error) {
	if namespace == "" {
		namespace = "libten"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	c := &SnapshotCollector{
		schedulers: prom.NewDesc(namespace+"_schedulers",
			"Number of live schedulers.", nil, nil),
		liveTasks: prom.NewDesc(namespace+"_tasks_live",
			"Number of live tasks across all schedulers.", nil, nil),
		userTasks: prom.NewDesc(namespace+"_tasks_user",
			"Number of live non-system tasks.", nil, nil),
	}
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *SnapshotCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.schedulers
	ch <- c.liveTasks
	ch <- c.userTasks
}

func (c *SnapshotCollector) Collect(ch chan<- prom.Metric) {
	st := core.Stats()
	ch <- prom.MustNewConstMetric(c.schedulers, prom.GaugeValue, float64(st.Schedulers))
	ch <- prom.MustNewConstMetric(c.liveTasks, prom.GaugeValue, float64(st.LiveTasks))
	ch <- prom.MustNewConstMetric(c.userTasks, prom.GaugeValue, float64(st.UserTasks))
}
