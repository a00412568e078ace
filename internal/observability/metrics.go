package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ParsesTotal counts finished parse requests by site and outcome
	// (ok, unsupported, blocked, timeout, not_found, error).
	ParsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parser_parses_total",
			Help: "Parse requests by site and outcome",
		},
		[]string{"site", "outcome"},
	)

	// StrategyAttempts counts individual extraction strategy runs by site,
	// strategy and outcome (hit, empty, error).
	StrategyAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parser_strategy_attempts_total",
			Help: "Extraction strategy attempts by site, strategy and outcome",
		},
		[]string{"site", "strategy", "outcome"},
	)

	// ParseDuration tracks wall-clock time per parse, navigation included.
	ParseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parser_parse_duration_seconds",
			Help:    "End-to-end parse duration",
			Buckets: []float64{1, 2.5, 5, 10, 15, 30, 60, 90},
		},
		[]string{"site"},
	)
)

// Register installs the collectors in the default registry. Call once from
// main; metrics still increment safely when left unregistered (tests).
func Register() {
	prometheus.MustRegister(ParsesTotal, StrategyAttempts, ParseDuration)
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
