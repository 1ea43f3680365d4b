package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesPublished tracks batches handed to the broker
	BatchesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detector_batches_published_total",
			Help: "Total number of contract batches published",
		},
	)

	// ContractsPublished tracks contracts moved to in-flight
	ContractsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detector_contracts_published_total",
			Help: "Total number of contracts published for analysis",
		},
	)

	// ContractsClassified tracks verdicts written back
	ContractsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_contracts_classified_total",
			Help: "Total number of contracts classified",
		},
		[]string{"verdict"},
	)

	// PipelineErrors tracks failures at loop boundaries
	PipelineErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_pipeline_errors_total",
			Help: "Total number of pipeline errors",
		},
		[]string{"loop", "stage"},
	)

	// ProducerCycleDuration tracks how long a producer sweep takes
	ProducerCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detector_producer_cycle_seconds",
			Help:    "Producer cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BrokerConnected is 1 while the broker channel is open
	BrokerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "detector_broker_connected",
			Help: "Whether the broker connection is established",
		},
	)

	// BrokerConnectAttempts tracks dial attempts by outcome
	BrokerConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_broker_connect_attempts_total",
			Help: "Total number of broker connection attempts",
		},
		[]string{"result"},
	)

	// ContractsByStatus tracks the backlog per status
	ContractsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "detector_contracts",
			Help: "Number of contracts per status",
		},
		[]string{"status"},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "detector_db_connection_pool_usage_percent",
			Help: "Database connection pool usage in percent",
		},
	)
)
