// Package metrics exposes netvid's send/receive counters as a Prometheus
// Collector, grounded on the TCPInfoCollector pattern in
// runZeroInc-sockstats/pkg/exporter.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type info struct {
	description *prometheus.Desc
	supplier    func(c *Collector) prometheus.Metric
}

// Collector reports frame/chunk/loss counters for one sender or receiver
// process. Counters are updated from hot paths via atomics; Collect only
// takes the mutex to read the send-delay histogram.
type Collector struct {
	role string // "sender" or "receiver"

	packetsSent     uint64
	packetsReceived uint64
	bytesSent       uint64
	bytesReceived   uint64
	framesCompleted uint64
	chunksLost      uint64

	mu         sync.Mutex
	sendDelay  prometheus.Histogram
	infos      []info
}

// New creates a Collector labelled with role ("sender" or "receiver").
func New(role string) *Collector {
	c := &Collector{
		role: role,
		sendDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "netvid",
			Subsystem:   role,
			Name:        "send_delay_seconds",
			Help:        "Delay imposed by the rate limiter before a chunk send completed.",
			Buckets:     prometheus.ExponentialBuckets(0.00005, 2, 12),
			ConstLabels: prometheus.Labels{"role": role},
		}),
	}

	c.infos = []info{
		{
			description: prometheus.NewDesc("netvid_packets_sent_total", "Packets sent.", nil, prometheus.Labels{"role": role}),
			supplier: func(c *Collector) prometheus.Metric {
				return prometheus.MustNewConstMetric(c.infos[0].description, prometheus.CounterValue, float64(atomic.LoadUint64(&c.packetsSent)))
			},
		},
		{
			description: prometheus.NewDesc("netvid_packets_received_total", "Packets received.", nil, prometheus.Labels{"role": role}),
			supplier: func(c *Collector) prometheus.Metric {
				return prometheus.MustNewConstMetric(c.infos[1].description, prometheus.CounterValue, float64(atomic.LoadUint64(&c.packetsReceived)))
			},
		},
		{
			description: prometheus.NewDesc("netvid_bytes_sent_total", "Bytes sent.", nil, prometheus.Labels{"role": role}),
			supplier: func(c *Collector) prometheus.Metric {
				return prometheus.MustNewConstMetric(c.infos[2].description, prometheus.CounterValue, float64(atomic.LoadUint64(&c.bytesSent)))
			},
		},
		{
			description: prometheus.NewDesc("netvid_bytes_received_total", "Bytes received.", nil, prometheus.Labels{"role": role}),
			supplier: func(c *Collector) prometheus.Metric {
				return prometheus.MustNewConstMetric(c.infos[3].description, prometheus.CounterValue, float64(atomic.LoadUint64(&c.bytesReceived)))
			},
		},
		{
			description: prometheus.NewDesc("netvid_frames_completed_total", "Frames fully reassembled.", nil, prometheus.Labels{"role": role}),
			supplier: func(c *Collector) prometheus.Metric {
				return prometheus.MustNewConstMetric(c.infos[4].description, prometheus.CounterValue, float64(atomic.LoadUint64(&c.framesCompleted)))
			},
		},
		{
			description: prometheus.NewDesc("netvid_chunks_lost_total", "Chunks never received before their frame was abandoned.", nil, prometheus.Labels{"role": role}),
			supplier: func(c *Collector) prometheus.Metric {
				return prometheus.MustNewConstMetric(c.infos[5].description, prometheus.CounterValue, float64(atomic.LoadUint64(&c.chunksLost)))
			},
		},
	}

	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	for _, info := range c.infos {
		descs <- info.description
	}
	c.sendDelay.Describe(descs)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	for _, info := range c.infos {
		metrics <- info.supplier(c)
	}

	c.mu.Lock()
	hist := c.sendDelay
	c.mu.Unlock()
	hist.Collect(metrics)
}

// ObservePacketSent records one outbound packet of n bytes.
func (c *Collector) ObservePacketSent(n int) {
	atomic.AddUint64(&c.packetsSent, 1)
	atomic.AddUint64(&c.bytesSent, uint64(n))
}

// ObservePacketReceived records one inbound packet of n bytes.
func (c *Collector) ObservePacketReceived(n int) {
	atomic.AddUint64(&c.packetsReceived, 1)
	atomic.AddUint64(&c.bytesReceived, uint64(n))
}

// ObserveFrameCompleted records one fully reassembled frame, with the
// number of chunks that were never received for it.
func (c *Collector) ObserveFrameCompleted(chunksLost int) {
	atomic.AddUint64(&c.framesCompleted, 1)
	if chunksLost > 0 {
		atomic.AddUint64(&c.chunksLost, uint64(chunksLost))
	}
}

// ObserveSendDelay records time spent blocked in the rate limiter before a
// chunk send completed.
func (c *Collector) ObserveSendDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendDelay.Observe(d.Seconds())
}
