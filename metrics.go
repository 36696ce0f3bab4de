/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	guessesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topdrop",
		Name:      "guesses_total",
		Help:      "Guesses resolved, by the tier that matched",
	}, []string{"tier"})

	itemsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "topdrop",
		Name:      "items_ingested_total",
		Help:      "List items parsed from generator output",
	})

	snapshotsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "topdrop",
		Name:      "snapshots_created_total",
		Help:      "Snapshots stored, by where the list came from",
	}, []string{"source"})

	generationFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "topdrop",
		Name:      "generation_fallbacks_total",
		Help:      "Generations that fell back to the placeholder generator",
	})

	generationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "topdrop",
		Name:      "generation_seconds",
		Help:      "Time from request to stored snapshot",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"mode"})

	activeGames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "topdrop",
		Name:      "active_games",
		Help:      "Game sessions currently held in memory",
	})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "topdrop",
		Name:      "rate_limited_total",
		Help:      "Generation requests rejected by the per-client limiter",
	})
)

func registerMetrics(cfg *Config, mux *httprouter.Router) {
	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.Handler())
}
