package sources

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/numaflow-rsp/pkg/metrics"
)

// eventsRead is used to indicate the number of events dispatched to a stream
var eventsRead = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "source",
	Name:      "read_total",
	Help:      "Total number of events dispatched",
}, []string{metrics.LabelSource})

// quadsRead is used to indicate the number of quads dispatched to a stream
var quadsRead = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "source",
	Name:      "read_quads_total",
	Help:      "Total number of quads dispatched",
}, []string{metrics.LabelSource})

// invalidEvents is used to indicate the number of events rejected before reaching a stream
var invalidEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "source",
	Name:      "invalid_total",
	Help:      "Total number of rejected events",
}, []string{metrics.LabelSource, metrics.LabelReason})
