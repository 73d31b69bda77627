package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gzstream"

// exporter reads the Collector's counters at scrape time, so the hot
// path only ever touches atomics.
type exporter struct {
	c *Collector

	connectionsActive *prometheus.Desc
	connectionsTotal  *prometheus.Desc
	bytes             *prometheus.Desc
	decoded           *prometheus.Desc
	messages          *prometheus.Desc
	idlePolls         *prometheus.Desc
	errors            *prometheus.Desc
}

// NewExporter returns a prometheus.Collector over c.
func NewExporter(c *Collector) prometheus.Collector {
	return &exporter{
		c: c,
		connectionsActive: prometheus.NewDesc(namespace+"_connections_active",
			"Connections currently held by the server.", nil, nil),
		connectionsTotal: prometheus.NewDesc(namespace+"_connections_total",
			"Connections accepted since start.", nil, nil),
		bytes: prometheus.NewDesc(namespace+"_compressed_bytes_total",
			"Compressed bytes moved over the socket.", []string{"direction"}, nil),
		decoded: prometheus.NewDesc(namespace+"_decoded_bytes_total",
			"Bytes produced by the decompressor.", nil, nil),
		messages: prometheus.NewDesc(namespace+"_client_messages_total",
			"Client message tokens by outcome.", []string{"outcome"}, nil),
		idlePolls: prometheus.NewDesc(namespace+"_idle_polls_total",
			"Polls that timed out with nothing ready.", nil, nil),
		errors: prometheus.NewDesc(namespace+"_errors_total",
			"Errors recorded by either peer.", nil, nil),
	}
}

func (e *exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.connectionsActive
	ch <- e.connectionsTotal
	ch <- e.bytes
	ch <- e.decoded
	ch <- e.messages
	ch <- e.idlePolls
	ch <- e.errors
}

func (e *exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.c.Snapshot()
	gauge := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(e.connectionsActive, s.ConnectionsActive)
	counter(e.connectionsTotal, s.ConnectionsTotal)
	counter(e.bytes, s.BytesIn, "in")
	counter(e.bytes, s.BytesOut, "out")
	counter(e.decoded, s.BytesDecoded)
	counter(e.messages, s.MessagesSent, "sent")
	counter(e.messages, s.MessagesSkipped, "skipped")
	counter(e.messages, s.MessagesFailed, "failed")
	counter(e.idlePolls, s.IdlePolls)
	counter(e.errors, s.ErrorsTotal)
}

// Handler serves c in the Prometheus text format from a private
// registry.
func Handler(c *Collector) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewExporter(c))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
