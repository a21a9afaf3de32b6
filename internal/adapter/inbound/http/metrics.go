package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for mcpgate.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all request metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "requests_total",
				Help:      "Total number of bridge requests processed",
			},
			[]string{"method", "status"}, // method=POST, status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"method"},
		),
	}
}

// registerBridgeCollectors registers gauge and counter functions that sample
// the bridge and subprocess state on scrape.
func registerBridgeCollectors(reg prometheus.Registerer, bridge BridgeStatus, process ProcessStatus) {
	if bridge != nil {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "mcpgate",
				Name:      "pending_calls",
				Help:      "Number of in-flight calls awaiting an upstream response",
			},
			func() float64 { return float64(bridge.PendingCalls()) },
		)
		promauto.With(reg).NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "malformed_lines_total",
				Help:      "Total stdout lines that failed to decode as JSON-RPC",
			},
			func() float64 { return float64(bridge.MalformedLines()) },
		)
		promauto.With(reg).NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "discarded_responses_total",
				Help:      "Total upstream responses with no matching pending call",
			},
			func() float64 { return float64(bridge.DiscardedResponses()) },
		)
	}
	if process != nil {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "mcpgate",
				Name:      "upstream_up",
				Help:      "1 when the MCP server subprocess is running, 0 otherwise",
			},
			func() float64 {
				if process.IsAlive() {
					return 1
				}
				return 0
			},
		)
		promauto.With(reg).NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: "mcpgate",
				Name:      "process_restarts_total",
				Help:      "Total relaunches of the MCP server subprocess after its initial start",
			},
			func() float64 { return float64(process.Restarts()) },
		)
	}
}
