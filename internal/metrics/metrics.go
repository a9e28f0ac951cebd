package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synapse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synapse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Vendor proxy metrics
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synapse_proxy_requests_total",
			Help: "Total number of vendor proxy calls by outcome",
		},
		[]string{"proxy", "action", "outcome"},
	)

	// Opportunity detector metrics
	DetectorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synapse_detector_runs_total",
			Help: "Total number of opportunity detector runs",
		},
		[]string{"status"},
	)

	OpportunitiesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synapse_opportunities_detected_total",
			Help: "Total number of opportunities inserted",
		},
		[]string{"type"},
	)

	DetectorBrandFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synapse_detector_brand_failures_total",
			Help: "Total number of brands that failed during detection",
		},
	)

	ExpiredOpportunitiesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synapse_opportunities_expired_deleted_total",
			Help: "Total number of expired opportunity rows removed",
		},
	)

	// Enrichment metrics
	EnrichmentRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synapse_enrichment_refreshes_total",
			Help: "Total number of enrichment section computations",
		},
		[]string{"section", "status"},
	)

	// Content generation metrics
	ContentGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synapse_content_generated_total",
			Help: "Total number of generated content pieces",
		},
		[]string{"mode", "model"},
	)

	// NATS metrics
	NatsMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synapse_nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"subject", "status"},
	)

	// Browser logger metrics
	BrowserLogBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synapse_browser_log_bytes_total",
			Help: "Total bytes appended to the browser log",
		},
	)

	BrowserLogRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synapse_browser_log_rotations_total",
			Help: "Total number of browser log rotations",
		},
	)

	// Application health metrics
	ApplicationInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synapse_application_info",
			Help: "Application information",
		},
		[]string{"service", "version", "environment"},
	)
)

// Init records static application info.
func Init(serviceName, version, environment string) {
	ApplicationInfo.WithLabelValues(serviceName, version, environment).Set(1)
}
