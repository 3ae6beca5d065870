package metrics

import (
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbConnections, dbConnectionsMax, dbTransactionsTotal) }

var (
	dbConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // idle | acquired | constructing
	)

	dbConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_max",
			Help: "Configured upper bound of the Postgres pool.",
		},
	)

	dbTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_transactions_total",
			Help: "Transactions run through the tx manager, by outcome.",
		},
		[]string{"result"}, // commit | rollback | retry | error
	)
)

// ObservePool copies a pool snapshot into the connection gauges.
func ObservePool(s *pgxpool.Stat) {
	dbConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	dbConnections.WithLabelValues("acquired").Set(float64(s.AcquiredConns()))
	dbConnections.WithLabelValues("constructing").Set(float64(s.ConstructingConns()))
	dbConnectionsMax.Set(float64(s.MaxConns()))
}

func IncTransaction(result string) { dbTransactionsTotal.WithLabelValues(norm(result)).Inc() }
