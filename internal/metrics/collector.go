package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineStats exposes live pipeline state to the collector.
type PipelineStats interface {
	QueueDepth() int
	Transcribing() bool
	SubscriberCount() int
}

// Collector reads gauges at scrape time instead of tracking them on every change.
type Collector struct {
	stats PipelineStats

	queueDepth   *prometheus.Desc
	transcribing *prometheus.Desc
	subscribers  *prometheus.Desc
}

// NewCollector creates a collector. stats may be nil; gauges then report 0.
func NewCollector(stats PipelineStats) *Collector {
	return &Collector{
		stats: stats,
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_depth"),
			"Transcription jobs waiting for a worker.",
			nil, nil,
		),
		transcribing: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "transcribing"),
			"1 while a transcription job is running.",
			nil, nil,
		),
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "event_subscribers_active"),
			"Current number of event stream subscribers.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.transcribing
	ch <- c.subscribers
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var depth, busy, subs float64
	if c.stats != nil {
		depth = float64(c.stats.QueueDepth())
		if c.stats.Transcribing() {
			busy = 1
		}
		subs = float64(c.stats.SubscriberCount())
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, depth)
	ch <- prometheus.MustNewConstMetric(c.transcribing, prometheus.GaugeValue, busy)
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, subs)
}
