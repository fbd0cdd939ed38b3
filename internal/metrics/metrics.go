// Package metrics exports gadget readings and download outcomes to
// Prometheus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/srg/smartgadget/internal/sink"
)

const namespace = "smartgadget"

// Collector is a sink.Publisher that turns batches into metrics.
type Collector struct {
	reading    *prometheus.GaugeVec
	lastPoll   *prometheus.GaugeVec
	samples    *prometheus.CounterVec
	missed     *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	downloads  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	progress   *prometheus.GaugeVec
	errors     *prometheus.CounterVec
}

// NewCollector registers the collector's metrics with reg, or with
// prometheus.DefaultRegisterer when reg is nil.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Latest live value per gadget channel.",
		}, []string{"address", "channel"}),
		lastPoll: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_poll_timestamp_seconds",
			Help:      "Unix time of the last successful poll.",
		}, []string{"address"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_samples_total",
			Help:      "History samples downloaded.",
		}, []string{"address", "channel"}),
		missed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_missed_total",
			Help:      "History sample ids never received.",
		}, []string{"address", "channel"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_duplicates_total",
			Help:      "Duplicate history frames dropped.",
		}, []string{"address", "channel"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download sessions by final status.",
		}, []string{"address", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time from start signal to session end.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"address"}),
		progress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "download_progress_percent",
			Help:      "Progress of the running download.",
		}, []string{"address"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Poll failures by stage.",
		}, []string{"address", "stage"}),
	}

	reg.MustRegister(c.reading, c.lastPoll, c.samples, c.missed, c.duplicates,
		c.downloads, c.duration, c.progress, c.errors)
	return c
}

func (c *Collector) Name() string { return "prometheus" }

func (c *Collector) Publish(_ context.Context, b sink.Batch) error {
	for kind, v := range b.Live {
		c.reading.WithLabelValues(b.Address, kind.String()).Set(v)
	}
	if !b.At.IsZero() {
		c.lastPoll.WithLabelValues(b.Address).Set(float64(b.At.UnixMilli()) / 1000)
	}

	res := b.Result
	if res == nil {
		return nil
	}
	c.downloads.WithLabelValues(b.Address, res.Status.String()).Inc()
	c.duration.WithLabelValues(b.Address).Observe(res.Duration.Seconds())
	for kind, ch := range res.Channels {
		c.samples.WithLabelValues(b.Address, kind.String()).Add(float64(len(ch.Samples)))
		c.missed.WithLabelValues(b.Address, kind.String()).Add(float64(ch.MissedCount()))
		c.duplicates.WithLabelValues(b.Address, kind.String()).Add(float64(ch.Duplicates))
	}
	c.progress.WithLabelValues(b.Address).Set(0)
	return nil
}

// ObserveProgress records the running download's progress.
func (c *Collector) ObserveProgress(address string, percent float64) {
	c.progress.WithLabelValues(address).Set(percent)
}

// ObserveError counts a failed poll stage such as "connect" or "publish".
func (c *Collector) ObserveError(address, stage string) {
	c.errors.WithLabelValues(address, stage).Inc()
}

var _ sink.Publisher = (*Collector)(nil)
