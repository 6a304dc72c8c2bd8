package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// validationsTotal counts schema validation passes.
	validationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hexrules_validations_total",
		Help: "Total schema validation passes",
	})

	// moveComputationsTotal counts reachability computations by outcome.
	moveComputationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hexrules_move_computations_total",
		Help: "Total valid-move computations by selection state",
	}, []string{"selection"})

	// schemaErrors is the number of entries in the latest validation, by severity.
	schemaErrors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hexrules_schema_errors",
		Help: "Schema problems reported by the latest validation",
	}, []string{"severity"})

	// reachabilityExplored tracks search steps per computation.
	reachabilityExplored = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hexrules_reachability_explored",
		Help:    "Frontier pops per valid-move computation",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
	})

	// autosavesTotal counts autosave attempts by result.
	autosavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hexrules_autosaves_total",
		Help: "Total autosave attempts by result",
	}, []string{"result"})
)
