// Package metrics exposes Prometheus counters for rule conversion.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)
)

var (
	// RulesLoaded counts rules produced by the loader, by rule kind.
	RulesLoaded = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "geosite_rules_loaded_total",
		Help: "Rules parsed from data files, by kind.",
	}, []string{"kind"})

	// IncludesMissing counts include targets (or root files) that do not exist.
	IncludesMissing = factory.NewCounter(prometheus.CounterOpts{
		Name: "geosite_includes_missing_total",
		Help: "Referenced files that were not found.",
	})

	// IncludesCyclic counts files skipped because they were already visited.
	IncludesCyclic = factory.NewCounter(prometheus.CounterOpts{
		Name: "geosite_includes_cyclic_total",
		Help: "Include references short-circuited by the visited set.",
	})

	// LoadFailures counts root loads aborted by an unreadable file.
	LoadFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "geosite_load_failures_total",
		Help: "Root file loads that failed.",
	})

	// RulesDropped counts rules an encoding has no representation for.
	RulesDropped = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "geosite_rules_dropped_total",
		Help: "Rules dropped during encoding, by behavior.",
	}, []string{"behavior"})

	// ArtifactsWritten counts serialized artifacts, by behavior and format.
	ArtifactsWritten = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "geosite_artifacts_written_total",
		Help: "Artifacts rendered, by behavior and format.",
	}, []string{"behavior", "format"})

	// CacheRequests counts result cache lookups, by outcome.
	CacheRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "geosite_result_cache_requests_total",
		Help: "Result cache lookups, by outcome (hit or miss).",
	}, []string{"outcome"})
)

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
