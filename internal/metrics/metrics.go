package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	AnchorFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anchor_fetches_total",
			Help: "Anchor source polls by result",
		},
		[]string{"result"},
	)

	SeedsMaterialized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seeds_materialized_total",
			Help: "Seeds whose number sequence was generated and stored",
		},
	)

	Draws = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_draws_total",
			Help: "Numbers taken from the pool",
		},
		[]string{"game"},
	)

	BetsPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bets_placed_total",
			Help: "Accepted bets",
		},
		[]string{"game"},
	)

	RoundsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rounds_finalized_total",
			Help: "Rounds settled",
		},
		[]string{"game"},
	)

	BalanceChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_updates_total",
			Help: "Committed balance mutations",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		HttpRequests,
		AnchorFetches,
		SeedsMaterialized,
		Draws,
		BetsPlaced,
		RoundsFinalized,
		BalanceChanges,
	)
}
