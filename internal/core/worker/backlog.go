package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/erc20-detector/internal/core/domain"
	"github.com/vietddude/erc20-detector/internal/pipeline/metrics"
)

// StatusCounter reports how many contracts sit in each status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.ContractStatus]int, error)
}

// BacklogReporter periodically publishes contract counts per status as a gauge.
type BacklogReporter struct {
	counter  StatusCounter
	interval time.Duration
	log      *slog.Logger

	mu   sync.RWMutex
	last map[domain.ContractStatus]int
}

// NewBacklogReporter creates a new reporter. A non-positive interval disables it.
func NewBacklogReporter(counter StatusCounter, interval time.Duration) *BacklogReporter {
	return &BacklogReporter{
		counter:  counter,
		interval: interval,
		log:      slog.Default().With("component", "backlog"),
	}
}

// Start runs the reporter loop.
func (r *BacklogReporter) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Initial report
	r.report(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

// last returns the counts from the most recent successful report.
func (r *BacklogReporter) last() map[domain.ContractStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (r *BacklogReporter) report(ctx context.Context) {
	counts, err := r.counter.CountByStatus(ctx)
	if err != nil {
		r.log.Error("Failed to count contracts", "error", err)
		return
	}

	for _, status := range domain.AllContractStatuses {
		metrics.ContractsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	r.mu.Lock()
	r.last = counts
	r.mu.Unlock()

	r.log.Debug("Contract backlog",
		"pending", counts[domain.ContractStatusPendingAnalysis],
		"in_flight", counts[domain.ContractStatusInFlight],
		"failed", counts[domain.ContractStatusFailed],
	)
}
