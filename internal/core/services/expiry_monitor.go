package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/poyrazK/accessgate/internal/core/domain"
	"github.com/poyrazK/accessgate/internal/core/engine"
	"github.com/poyrazK/accessgate/internal/core/ports"
	"github.com/poyrazK/accessgate/internal/infrastructure/metrics"
)

// ExpiryMonitor watches paid grants cross their expiry date. Expiry is never
// written to the store; the monitor only nudges subscribers so they recompute
// display status, and refreshes the entitlement gauges.
type ExpiryMonitor struct {
	repo      ports.AccessRepository
	notifier  ports.ChangeNotifier
	interval  time.Duration
	unitPrice int64
	clock     ports.Clock
	logger    *slog.Logger

	mu       sync.Mutex
	entitled map[string]struct{} // paid subjects entitled at the last check
	primed   bool
}

func NewExpiryMonitor(
	repo ports.AccessRepository,
	notifier ports.ChangeNotifier,
	interval time.Duration,
	unitPrice int64,
	clock ports.Clock,
	logger *slog.Logger,
) *ExpiryMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpiryMonitor{
		repo:      repo,
		notifier:  notifier,
		interval:  interval,
		unitPrice: unitPrice,
		clock:     clock,
		logger:    logger,
		entitled:  make(map[string]struct{}),
	}
}

func (m *ExpiryMonitor) Start(ctx context.Context) {
	m.logger.Info("starting expiry monitor", "interval", m.interval)

	// Perform immediate check
	m.TriggerCheck(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("shutting down expiry monitor")
			return
		case <-ticker.C:
			m.TriggerCheck(ctx)
		}
	}
}

// TriggerCheck classifies every record now and returns the subjects whose
// paid entitlement lapsed since the previous check.
func (m *ExpiryMonitor) TriggerCheck(ctx context.Context) []string {
	records, err := m.repo.ListRecords(ctx)
	if err != nil {
		m.logger.Error("expiry check failed to list records", "error", err)
		return nil
	}

	valid := make([]domain.AccessRecord, 0, len(records))
	for _, r := range records {
		if err := engine.Validate(r); err != nil {
			m.logger.Warn("expiry check skipping malformed access record", "subject", r.SubjectID, "error", err)
			continue
		}
		valid = append(valid, r)
	}

	now := m.clock()
	counts := make(map[domain.DisplayStatus]int)
	current := make(map[string]struct{})
	for _, r := range valid {
		status := engine.Classify(r, now)
		counts[status]++
		if status == domain.DisplayActivePaid {
			current[r.SubjectID] = struct{}{}
		}
	}

	for _, s := range []domain.DisplayStatus{
		domain.DisplayActivePaid,
		domain.DisplayExpired,
		domain.DisplayManuallyApproved,
		domain.DisplayDenied,
		domain.DisplayPendingApproval,
		domain.DisplayUnknown,
	} {
		metrics.Records.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
	stats := engine.Summarize(valid, now, m.unitPrice)
	metrics.EstimatedMonthlyRevenue.Set(float64(stats.EstimatedMonthlyRevenue))

	m.mu.Lock()
	var lapsed []string
	if m.primed {
		for id := range m.entitled {
			if _, still := current[id]; !still {
				lapsed = append(lapsed, id)
			}
		}
	}
	m.entitled = current
	m.primed = true
	m.mu.Unlock()

	for _, id := range lapsed {
		m.logger.Info("paid access lapsed", "subject", id)
		if err := m.notifier.Publish(ctx, id); err != nil {
			m.logger.Warn("failed to publish expiry", "subject", id, "error", err)
		}
	}
	return lapsed
}
