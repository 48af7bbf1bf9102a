package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/numaflow-rsp/pkg/metrics"
)

// ingestedBatches is used to indicate the number of batches accepted from producers
var ingestedBatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "ingested_batches_total",
	Help:      "Total number of batches added to a stream",
}, []string{metrics.LabelStream})

// ingestedQuads is used to indicate the number of quads accepted from producers
var ingestedQuads = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "ingested_quads_total",
	Help:      "Total number of quads added to a stream",
}, []string{metrics.LabelStream})

// inputBufferSize is used to indicate the number of batches waiting for a window
var inputBufferSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "engine",
	Name:      "input_buffer_size",
	Help:      "Number of batches queued for a window",
}, []string{metrics.LabelWindow})

// evaluations is used to indicate the number of query evaluations
var evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "evaluations_total",
	Help:      "Total number of query evaluations over emitted windows",
}, []string{metrics.LabelWindow})

// evaluationErrors is used to indicate the number of failed query evaluations
var evaluationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "evaluation_error_total",
	Help:      "Total number of failed query evaluations",
}, []string{metrics.LabelWindow})

// resultsProduced is used to indicate the number of results sent to the consumer
var resultsProduced = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "results_total",
	Help:      "Total number of results produced",
}, []string{metrics.LabelWindow})

// evaluationTime is a histogram to observe query evaluation latency
var evaluationTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "engine",
	Name:      "evaluation_time",
	Help:      "Processing times of query evaluations (10 microseconds to 10 seconds)",
	Buckets:   prometheus.ExponentialBucketsRange(10, 10000000, 10),
}, []string{metrics.LabelWindow})
