package network

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
)

// counters are the running totals of a Service.
type counters struct {
	connects         atomic.Uint64
	connectFailures  atomic.Uint64
	securityFailures atomic.Uint64
	channelsClosed   atomic.Uint64
	bytesWritten     atomic.Uint64
	bytesRead        atomic.Uint64
	writesFailed     atomic.Uint64
}

func (c *counters) connectFailed(err error) {
	if clienterr.KindOf(err) == clienterr.KindSecurity {
		c.securityFailures.Add(1)
		return
	}
	c.connectFailures.Add(1)
}

// Stats is a snapshot of a Service.
type Stats struct {
	Workers          WorkerStats
	Connects         uint64
	ConnectFailures  uint64
	SecurityFailures uint64
	ChannelsClosed   uint64
	BytesWritten     uint64
	BytesRead        uint64
	WritesFailed     uint64
}

// OpenChannels returns the channels connected and not yet closed.
func (s Stats) OpenChannels() uint64 {
	return s.Connects - s.ChannelsClosed
}

type serviceCollector struct {
	svc *Service

	connects     *prometheus.Desc
	failures     *prometheus.Desc
	open         *prometheus.Desc
	bytes        *prometheus.Desc
	writesFailed *prometheus.Desc
	workerRefs   *prometheus.Desc
	generations  *prometheus.Desc
}

// Collector returns a prometheus collector exporting the service stats.
func (s *Service) Collector() prometheus.Collector {
	return &serviceCollector{
		svc: s,
		connects: prometheus.NewDesc(
			"mqlight_network_connects_total",
			"Channels established",
			nil, nil,
		),
		failures: prometheus.NewDesc(
			"mqlight_network_connect_failures_total",
			"Failed connect attempts by error kind",
			[]string{"kind"}, nil,
		),
		open: prometheus.NewDesc(
			"mqlight_network_open_channels",
			"Channels currently open",
			nil, nil,
		),
		bytes: prometheus.NewDesc(
			"mqlight_network_bytes_total",
			"Bytes moved by channels",
			[]string{"direction"}, nil,
		),
		writesFailed: prometheus.NewDesc(
			"mqlight_network_writes_failed_total",
			"Writes that did not reach the transport",
			nil, nil,
		),
		workerRefs: prometheus.NewDesc(
			"mqlight_network_worker_refs",
			"References held on the shared worker group",
			nil, nil,
		),
		generations: prometheus.NewDesc(
			"mqlight_network_worker_generations_total",
			"Worker groups created",
			nil, nil,
		),
	}
}

func (c *serviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connects
	ch <- c.failures
	ch <- c.open
	ch <- c.bytes
	ch <- c.writesFailed
	ch <- c.workerRefs
	ch <- c.generations
}

func (c *serviceCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.svc.Stats()
	ch <- prometheus.MustNewConstMetric(c.connects, prometheus.CounterValue, float64(st.Connects))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(st.ConnectFailures), "connect")
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(st.SecurityFailures), "security")
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(st.OpenChannels()))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(st.BytesWritten), "out")
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.CounterValue, float64(st.BytesRead), "in")
	ch <- prometheus.MustNewConstMetric(c.writesFailed, prometheus.CounterValue, float64(st.WritesFailed))
	ch <- prometheus.MustNewConstMetric(c.workerRefs, prometheus.GaugeValue, float64(st.Workers.Refs))
	ch <- prometheus.MustNewConstMetric(c.generations, prometheus.CounterValue, float64(st.Workers.Generation))
}
