package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wikiexplorer",
		Subsystem: "search",
		Name:      "steps_total",
		Help:      "Frontier expansions, by direction.",
	}, []string{"direction"})

	staleEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wikiexplorer",
		Subsystem: "search",
		Name:      "stale_entries_total",
		Help:      "Frontier entries found stale when popped, by outcome.",
	}, []string{"outcome"})

	edgesRetracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wikiexplorer",
		Subsystem: "search",
		Name:      "edges_retracted_total",
		Help:      "Claimed links removed after path validation failed.",
	})

	searchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wikiexplorer",
		Subsystem: "search",
		Name:      "finished_total",
		Help:      "Completed searches, by final state.",
	}, []string{"state"})
)
