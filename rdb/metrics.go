package rdb

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 语句与连接池指标
type Metrics struct {
	statementCounter  *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	activeStatements  *prometheus.GaugeVec
	rowsHistogram     *prometheus.HistogramVec
	poolCollectors    []prometheus.Collector
}

// NewMetrics 创建指标，reg 为 nil 时不注册
func NewMetrics(name string, pool *Pool, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		statementCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_statements_total",
				Help: "Total number of executed statements",
			},
			[]string{"operation", "status"},
		),
		statementDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_statement_duration_seconds",
				Help:    "Duration of statements in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		activeStatements: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_statements",
				Help: "Number of statements in flight",
			},
			[]string{"operation"},
		),
		rowsHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_statement_rows",
				Help:    "Rows returned or affected per statement",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"operation"},
		),
	}

	if pool != nil {
		gauge := func(metric, help string, fn func(PoolStats) int) prometheus.Collector {
			return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: name + "_pool_" + metric,
				Help: help,
			}, func() float64 { return float64(fn(pool.Stats())) })
		}
		m.poolCollectors = []prometheus.Collector{
			gauge("open_connections", "Open connections in the pool", func(s PoolStats) int { return s.Open }),
			gauge("in_use_connections", "Connections currently acquired", func(s PoolStats) int { return s.InUse }),
			gauge("idle_connections", "Idle connections in the pool", func(s PoolStats) int { return s.Idle }),
			gauge("max_open_connections", "Configured pool upper bound", func(s PoolStats) int { return s.MaxOpen }),
		}
	}

	if reg != nil {
		collectors := append([]prometheus.Collector{
			m.statementCounter,
			m.statementDuration,
			m.activeStatements,
			m.rowsHistogram,
		}, m.poolCollectors...)
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return nil, errors.Wrap(err, "register metrics failed")
			}
		}
	}
	return m, nil
}
