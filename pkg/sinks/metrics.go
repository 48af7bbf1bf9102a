package sinks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/numaflow-rsp/pkg/metrics"
)

// writeCount is used to indicate the number of results written to a sink
var writeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sink",
	Name:      "write_total",
	Help:      "Total number of results written",
}, []string{metrics.LabelSink})

// writeErrors is used to indicate the number of failed batch writes
var writeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "sink",
	Name:      "write_error_total",
	Help:      "Total number of failed batch writes",
}, []string{metrics.LabelSink})

// writeProcessingTime is a histogram to observe batch write latency
var writeProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Subsystem: "sink",
	Name:      "write_processing_time",
	Help:      "Processing times of batch writes (100 microseconds to 20 minutes)",
	Buckets:   prometheus.ExponentialBucketsRange(100, 60000000*20, 10),
}, []string{metrics.LabelSink})
