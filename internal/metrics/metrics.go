// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "agentforge"

type Metrics struct {
	queueDepth        prom.Gauge
	activeExecutions  prom.Gauge
	executionsTotal   *prom.CounterVec
	executionDuration *prom.HistogramVec
	hubConnections    prom.Gauge
	hubDropped        prom.Counter
}

// New creates the collectors and registers them with reg, reusing collectors
// that are already registered. A nil reg means the default registerer.
func New(reg prom.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	queueDepth := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Executions waiting for a free slot.",
	})
	active := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "active_executions",
		Help:      "Executions currently running.",
	})
	total := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "executions_total",
		Help:      "Executions that reached a terminal status.",
	}, []string{"status"})
	duration := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "execution_duration_seconds",
		Help:      "Wall time from start to terminal status.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
	}, []string{"status"})
	connections := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "connections",
		Help:      "Live notification connections.",
	})
	dropped := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "events_dropped_total",
		Help:      "Events dropped because a receiver buffer was full.",
	})

	var err error
	if queueDepth, err = register(reg, queueDepth); err != nil {
		return nil, err
	}
	if active, err = register(reg, active); err != nil {
		return nil, err
	}
	if total, err = register(reg, total); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if connections, err = register(reg, connections); err != nil {
		return nil, err
	}
	if dropped, err = register(reg, dropped); err != nil {
		return nil, err
	}

	return &Metrics{
		queueDepth:        queueDepth,
		activeExecutions:  active,
		executionsTotal:   total,
		executionDuration: duration,
		hubConnections:    connections,
		hubDropped:        dropped,
	}, nil
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) SetActiveExecutions(n int) {
	if m == nil {
		return
	}
	m.activeExecutions.Set(float64(n))
}

func (m *Metrics) ExecutionFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.executionsTotal.WithLabelValues(status).Inc()
	if d > 0 {
		m.executionDuration.WithLabelValues(status).Observe(d.Seconds())
	}
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.hubConnections.Set(float64(n))
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.hubDropped.Inc()
}

func register[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}
	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}
	return collector, err
}
