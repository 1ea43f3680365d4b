package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/erc20-detector/internal/core/domain"
)

const (
	componentBroker  = "broker"
	componentBacklog = "backlog"
)

// BrokerStatus reports whether the broker connection is up.
type BrokerStatus interface {
	Connected() bool
}

// StatusCounter reports how many contracts sit in each status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.ContractStatus]int, error)
}

// CheckFunc probes a dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name      string
	fn        CheckFunc
	onFailure SystemStatus
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	broker          BrokerStatus
	counter         StatusCounter
	checks          []check
	failedThreshold int
	cacheTTL        time.Duration
	lastCheck       time.Time
	lastReport      *HealthReport
	mu              sync.Mutex
}

// NewMonitor creates a new health monitor. A backlog with more than failedThreshold
// failed contracts marks the system degraded; zero disables that rule.
func NewMonitor(broker BrokerStatus, counter StatusCounter, failedThreshold int) *Monitor {
	return &Monitor{
		broker:          broker,
		counter:         counter,
		failedThreshold: failedThreshold,
		cacheTTL:        10 * time.Second,
	}
}

// AddCheck registers a dependency probe. A failing probe sets the component to
// onFailure.
func (m *Monitor) AddCheck(name string, onFailure SystemStatus, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, check{name: name, fn: fn, onFailure: onFailure})
}

// CheckHealth returns the current report. Results are cached briefly so frequent
// probes do not hammer the database.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheTTL {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}
	record := func(c ComponentHealth) {
		report.Components[c.Name] = c
		if c.Status.severity() > report.SystemStatus.severity() {
			report.SystemStatus = c.Status
		}
	}

	// 1. Broker connection
	if m.broker != nil {
		c := ComponentHealth{Name: componentBroker, Status: StatusHealthy}
		if !m.broker.Connected() {
			c.Status = StatusDegraded
			c.Error = "not connected"
		}
		record(c)
	}

	// 2. Registered dependency probes
	for _, chk := range m.checks {
		c := ComponentHealth{Name: chk.name, Status: StatusHealthy}
		if err := chk.fn(ctx); err != nil {
			c.Status = chk.onFailure
			c.Error = err.Error()
		}
		record(c)
	}

	// 3. Backlog
	if m.counter != nil {
		c := ComponentHealth{Name: componentBacklog, Status: StatusHealthy}
		counts, err := m.counter.CountByStatus(ctx)
		if err != nil {
			c.Status = StatusDegraded
			c.Error = err.Error()
		} else {
			report.Backlog = make(map[string]int, len(counts))
			for status, n := range counts {
				report.Backlog[string(status)] = n
			}
			if m.failedThreshold > 0 && counts[domain.ContractStatusFailed] > m.failedThreshold {
				c.Status = StatusDegraded
				c.Error = "too many failed contracts"
			}
		}
		record(c)
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
