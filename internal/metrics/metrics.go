// Package metrics holds the prometheus collectors of the escrow engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RoomsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_rooms_created_total",
			Help: "Rooms created, by prize mode",
		},
		[]string{"mode"},
	)
	Joins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_joins_total",
			Help: "Participant entries created",
		},
	)
	Settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_settlements_total",
			Help: "Rooms settled, by prize mode",
		},
		[]string{"mode"},
	)
	SettledValue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_settled_value_total",
			Help: "Value paid out at settlement in smallest asset units, by recipient role and asset",
		},
		[]string{"role", "asset"},
	)
	OperationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_operation_failures_total",
			Help: "Aborted operations, by operation and error code",
		},
		[]string{"operation", "code"},
	)
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_rate_limited_total",
			Help: "Requests blocked by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(RoomsCreated)
	prometheus.MustRegister(Joins)
	prometheus.MustRegister(Settlements)
	prometheus.MustRegister(SettledValue)
	prometheus.MustRegister(OperationFailures)
	prometheus.MustRegister(RateLimited)
}

// PoolStats is a point-in-time view of the database connection pool.
type PoolStats struct {
	Acquired      int32
	Idle          int32
	Total         int32
	Max           int32
	EmptyAcquires int64
	AcquireWait   time.Duration
}

// RegisterPool exports the pool counters returned by stats, read on every
// scrape.
func RegisterPool(reg prometheus.Registerer, stats func() PoolStats) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "escrow_db_conns_acquired",
			Help: "Connections currently held by a transaction",
		}, func() float64 { return float64(stats().Acquired) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "escrow_db_conns_idle",
			Help: "Idle connections in the pool",
		}, func() float64 { return float64(stats().Idle) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "escrow_db_conns_total",
			Help: "Open connections in the pool",
		}, func() float64 { return float64(stats().Total) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "escrow_db_conns_max",
			Help: "Configured pool size",
		}, func() float64 { return float64(stats().Max) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "escrow_db_empty_acquires_total",
			Help: "Acquires that had to wait for a free connection",
		}, func() float64 { return float64(stats().EmptyAcquires) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "escrow_db_acquire_wait_seconds_total",
			Help: "Time spent waiting for a connection",
		}, func() float64 { return stats().AcquireWait.Seconds() }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
