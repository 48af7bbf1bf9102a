package sliding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/numaproj/numaflow-rsp/pkg/metrics"
)

// activeWindows is used to indicate the number of materialized window instances
var activeWindows = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "window",
	Name:      "active_count",
	Help:      "Total number of active window instances",
}, []string{metrics.LabelWindow})

// emittedWindows is used to indicate the number of window instances reported to subscribers
var emittedWindows = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window",
	Name:      "emitted_total",
	Help:      "Total number of window instances emitted",
}, []string{metrics.LabelWindow})

// evictedWindows is used to indicate the number of window instances removed after reporting
var evictedWindows = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window",
	Name:      "evicted_total",
	Help:      "Total number of window instances evicted",
}, []string{metrics.LabelWindow})

// outOfOrderFacts is used to indicate the number of facts older than the last delivery time
var outOfOrderFacts = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window",
	Name:      "out_of_order_total",
	Help:      "Total number of facts received behind the window time",
}, []string{metrics.LabelWindow})

// lateDroppedFacts is used to indicate the number of facts which no active window could accept
var lateDroppedFacts = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "window",
	Name:      "late_dropped_total",
	Help:      "Total number of facts dropped because their windows were already reported",
}, []string{metrics.LabelWindow})
