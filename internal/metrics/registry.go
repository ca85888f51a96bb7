// Package metrics exposes the Prometheus counters, gauges and histograms
// surfaced at GET /metrics. The orchestrator's metrics loop copies the
// ingestion, opportunity, history and adapter counters onto them once a
// second; the analysis loop observes the spread-calculation duration directly.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds every metric the monitor exports, registered against its
// own prometheus.Registry rather than the global default so multiple
// Registry instances (e.g. one per test) never collide on metric names.
type Registry struct {
	reg *prometheus.Registry

	QuotesReceived    *prometheus.CounterVec
	QuotesDropped     *prometheus.CounterVec
	ProcessingErrors  *prometheus.CounterVec
	QueueDepth        *prometheus.GaugeVec

	OpportunitiesFound   prometheus.Counter
	OpportunitiesExpired prometheus.Counter
	ActiveOpportunities  prometheus.Gauge
	SpreadCalcDuration   prometheus.Histogram

	RecordsWritten *prometheus.CounterVec
	RecordsDropped *prometheus.CounterVec
	WriteFailures  *prometheus.CounterVec

	NetworkBytesReceived *prometheus.CounterVec
	NetworkBytesSent     *prometheus.CounterVec
	ReconnectCount       *prometheus.CounterVec
	VenueHealth          *prometheus.GaugeVec
}

// NewRegistry builds every metric and registers it against this Registry's
// own prometheus.Registry, not the default Prometheus registerer.
func NewRegistry() *Registry {
	r := &Registry{
		QuotesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbmon_quotes_received_total",
				Help: "Total quote/ticker updates accepted onto the bounded ingestion queues",
			},
			[]string{"queue"},
		),
		QuotesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbmon_quotes_dropped_total",
				Help: "Total quote updates dropped due to bounded queue overflow",
			},
			[]string{"queue"},
		),
		ProcessingErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbmon_processing_errors_total",
				Help: "Total errors raised while validating or normalizing ingested quotes",
			},
			[]string{"venue", "reason"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arbmon_queue_depth",
				Help: "Current depth of the bounded ingestion queue",
			},
			[]string{"queue"},
		),

		OpportunitiesFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbmon_opportunities_found_total",
				Help: "Total arbitrage opportunities newly created",
			},
		),
		OpportunitiesExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbmon_opportunities_expired_total",
				Help: "Total arbitrage opportunities that fell below threshold and expired",
			},
		),
		ActiveOpportunities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbmon_active_opportunities",
				Help: "Current number of tracked arbitrage opportunities",
			},
		),
		SpreadCalcDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbmon_spread_calc_duration_seconds",
				Help:    "Duration of one full spread-calculation pass over the state snapshot",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),

		RecordsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbmon_history_records_written_total",
				Help: "Total sampled history records persisted",
			},
			[]string{"sink"},
		),
		RecordsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbmon_history_records_dropped_total",
				Help: "Total sampled history records dropped because the write-intent queue was full",
			},
			[]string{"reason"},
		),
		WriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbmon_history_write_failures_total",
				Help: "Total batch writes that failed and were retained for retry",
			},
			[]string{"sink"},
		),

		NetworkBytesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbmon_network_bytes_received_total",
				Help: "Total bytes received over venue websocket connections",
			},
			[]string{"venue"},
		),
		NetworkBytesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbmon_network_bytes_sent_total",
				Help: "Total bytes sent over venue websocket connections",
			},
			[]string{"venue"},
		),
		ReconnectCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbmon_reconnect_total",
				Help: "Total reconnect attempts per venue",
			},
			[]string{"venue"},
		),
		VenueHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arbmon_venue_health",
				Help: "Venue health status: 0=down, 1=degraded, 2=healthy",
			},
			[]string{"venue"},
		),
	}

	r.reg = prometheus.NewRegistry()
	r.reg.MustRegister(
		r.QuotesReceived, r.QuotesDropped, r.ProcessingErrors, r.QueueDepth,
		r.OpportunitiesFound, r.OpportunitiesExpired, r.ActiveOpportunities, r.SpreadCalcDuration,
		r.RecordsWritten, r.RecordsDropped, r.WriteFailures,
		r.NetworkBytesReceived, r.NetworkBytesSent, r.ReconnectCount, r.VenueHealth,
	)

	return r
}

// Handler returns the Prometheus scrape handler bound to this Registry's
// own metric set.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Snapshot gathers the registry into a flat name -> value map for the JSON
// /stats endpoint, summing counter and gauge values across label sets.
// Histograms contribute their sample count under name + "_count".
func (r *Registry) Snapshot() (map[string]float64, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	out := make(map[string]float64, len(families))
	for _, fam := range families {
		name := fam.GetName()
		for _, m := range fam.GetMetric() {
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				out[name] += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[name] += m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[name+"_count"] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

// VenueHealthValue maps a health.Status to the gauge's numeric encoding.
func VenueHealthValue(status string) float64 {
	switch status {
	case "healthy":
		return 2
	case "degraded":
		return 1
	default:
		return 0
	}
}
