package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/accessgate/internal/core/domain"
	"github.com/poyrazK/accessgate/internal/core/engine"
	"github.com/poyrazK/accessgate/internal/core/ports"
	"github.com/poyrazK/accessgate/internal/infrastructure/metrics"
)

// Backoff bounds for reloading a subscriber's snapshot after a store failure.
var (
	snapshotRetryMin = 100 * time.Millisecond
	snapshotRetryMax = 5 * time.Second
)

// DefaultPaidDuration is the grant length used when the billing event omits one.
const DefaultPaidDuration = 30 * 24 * time.Hour

// ServiceConfig holds the tunables of the entitlement service.
type ServiceConfig struct {
	UnitPrice    int64 // per active paid seat, minor currency units
	PaidDuration time.Duration
	Clock        ports.Clock
}

type accessService struct {
	repo     ports.AccessRepository
	notifier ports.ChangeNotifier
	cfg      ServiceConfig
	logger   *slog.Logger
}

func NewAccessService(repo ports.AccessRepository, notifier ports.ChangeNotifier, cfg ServiceConfig, logger *slog.Logger) ports.AccessService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.PaidDuration <= 0 {
		cfg.PaidDuration = DefaultPaidDuration
	}
	return &accessService{repo: repo, notifier: notifier, cfg: cfg, logger: logger}
}

type transitionFunc func(domain.AccessRecord, string, time.Time) (domain.AccessRecord, error)

func (s *accessService) Approve(ctx context.Context, subjectID string, adminID string) error {
	return s.transition(ctx, domain.ActionApprove, subjectID, adminID, engine.ApplyApprove)
}

func (s *accessService) Deny(ctx context.Context, subjectID string, adminID string) error {
	return s.transition(ctx, domain.ActionDeny, subjectID, adminID, engine.ApplyDeny)
}

func (s *accessService) Revoke(ctx context.Context, subjectID string, adminID string) error {
	return s.transition(ctx, domain.ActionRevoke, subjectID, adminID, engine.ApplyRevoke)
}

// transition runs read, validate, conditional write. A lost race is retried
// once against a fresh read before ErrConcurrentModification is surfaced.
func (s *accessService) transition(ctx context.Context, action, subjectID, adminID string, apply transitionFunc) error {
	subjectID = domain.NormalizeSubjectID(subjectID)

	for attempt := 0; ; attempt++ {
		current, err := s.load(ctx, subjectID)
		if err != nil {
			return s.record(action, err)
		}

		next, err := apply(*current, adminID, s.cfg.Clock())
		if err != nil {
			return s.record(action, err)
		}

		err = s.repo.UpdateRecord(ctx, &next, current.Version)
		if errors.Is(err, domain.ErrConcurrentModification) && attempt == 0 {
			s.logger.Warn("access record changed under us, retrying", "subject", subjectID, "action", action)
			continue
		}
		if err != nil {
			return s.record(action, storeErr(err))
		}

		s.audit(ctx, action, subjectID, adminID, current.Status, next.Status)
		s.publish(ctx, subjectID)
		s.logger.Info("access record updated", "subject", subjectID, "action", action, "actor", adminID, "status", next.Status)
		return s.record(action, nil)
	}
}

func (s *accessService) Remove(ctx context.Context, subjectID string, adminID string) error {
	subjectID = domain.NormalizeSubjectID(subjectID)

	current, err := s.load(ctx, subjectID)
	if err != nil {
		return s.record(domain.ActionRemove, err)
	}
	if err := s.repo.DeleteRecord(ctx, subjectID); err != nil {
		return s.record(domain.ActionRemove, storeErr(err))
	}

	s.audit(ctx, domain.ActionRemove, subjectID, adminID, current.Status, "")
	s.publish(ctx, subjectID)
	s.logger.Info("access record removed", "subject", subjectID, "actor", adminID)
	return s.record(domain.ActionRemove, nil)
}

func (s *accessService) RequestAccess(ctx context.Context, subjectID string, notes string) (*domain.AccessRecord, error) {
	subjectID = domain.NormalizeSubjectID(subjectID)
	if err := domain.ValidateSubjectID(subjectID); err != nil {
		return nil, s.record(domain.ActionRequest, err)
	}

	rec := &domain.AccessRecord{
		SubjectID:   subjectID,
		AccessType:  domain.AccessManual,
		Status:      domain.StatusPending,
		RequestedAt: s.cfg.Clock(),
		Notes:       notes,
		Version:     1,
	}
	if err := s.repo.CreateRecord(ctx, rec); err != nil {
		return nil, s.record(domain.ActionRequest, storeErr(err))
	}

	s.audit(ctx, domain.ActionRequest, subjectID, subjectID, "", rec.Status)
	s.publish(ctx, subjectID)
	s.record(domain.ActionRequest, nil)
	return rec, nil
}

// GrantPaid applies a billing event. A new subject gets an active paid record;
// an active paid record is extended from max(expiry, purchasedAt).
func (s *accessService) GrantPaid(ctx context.Context, subjectID string, purchasedAt time.Time, duration time.Duration) (*domain.AccessRecord, error) {
	subjectID = domain.NormalizeSubjectID(subjectID)
	if err := domain.ValidateSubjectID(subjectID); err != nil {
		return nil, s.record(domain.ActionGrant, err)
	}
	if duration <= 0 {
		duration = s.cfg.PaidDuration
	}
	if purchasedAt.IsZero() {
		purchasedAt = s.cfg.Clock()
	}

	for attempt := 0; ; attempt++ {
		rec, from, err := s.grant(ctx, subjectID, purchasedAt, duration)
		if (errors.Is(err, domain.ErrConcurrentModification) || errors.Is(err, domain.ErrAlreadyExists)) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, s.record(domain.ActionGrant, err)
		}

		s.audit(ctx, domain.ActionGrant, subjectID, string(domain.RoleBilling), from, rec.Status)
		s.publish(ctx, subjectID)
		s.logger.Info("paid access granted", "subject", subjectID, "expiry", rec.ExpiryDate)
		s.record(domain.ActionGrant, nil)
		return rec, nil
	}
}

func (s *accessService) grant(ctx context.Context, subjectID string, purchasedAt time.Time, duration time.Duration) (*domain.AccessRecord, domain.Status, error) {
	now := s.cfg.Clock()
	current, err := s.load(ctx, subjectID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		expiry := purchasedAt.Add(duration)
		rec := &domain.AccessRecord{
			SubjectID:   subjectID,
			AccessType:  domain.AccessPaid,
			Approved:    true,
			Status:      domain.StatusActive,
			RequestedAt: now,
			ApprovedAt:  &now,
			PurchasedAt: &purchasedAt,
			ExpiryDate:  &expiry,
			Version:     1,
		}
		if err := s.repo.CreateRecord(ctx, rec); err != nil {
			return nil, "", storeErr(err)
		}
		return rec, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	if current.AccessType != domain.AccessPaid {
		return nil, "", fmt.Errorf("%w: %s holds %s access, access type is immutable", domain.ErrInvalidTransition, subjectID, current.AccessType)
	}

	next := *current
	switch current.Status {
	case domain.StatusActive:
		base := purchasedAt
		if current.ExpiryDate != nil && current.ExpiryDate.After(base) {
			base = *current.ExpiryDate
		}
		expiry := base.Add(duration)
		next.ExpiryDate = &expiry
	case domain.StatusPending:
		expiry := purchasedAt.Add(duration)
		next.Approved = true
		next.Status = domain.StatusActive
		next.ApprovedAt = &now
		next.ExpiryDate = &expiry
	default:
		return nil, "", fmt.Errorf("%w: cannot grant paid access to a %s record", domain.ErrInvalidTransition, current.Status)
	}
	next.PurchasedAt = &purchasedAt
	next.Version++

	if err := s.repo.UpdateRecord(ctx, &next, current.Version); err != nil {
		return nil, "", storeErr(err)
	}
	return &next, current.Status, nil
}

func (s *accessService) Get(ctx context.Context, subjectID string) (*domain.AccessRecord, error) {
	return s.load(ctx, domain.NormalizeSubjectID(subjectID))
}

func (s *accessService) List(ctx context.Context, category domain.Category) ([]domain.AccessRecord, error) {
	records, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return engine.FilterByCategory(records, category, s.cfg.Clock()), nil
}

func (s *accessService) ComputeStats(records []domain.AccessRecord, now time.Time) domain.Stats {
	return engine.Summarize(records, now, s.cfg.UnitPrice)
}

func (s *accessService) Stats(ctx context.Context) (domain.Stats, error) {
	records, err := s.snapshot(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return s.ComputeStats(records, s.cfg.Clock()), nil
}

func (s *accessService) ListAuditLogs(ctx context.Context, subjectID string) ([]domain.AuditLog, error) {
	logs, err := s.repo.GetAuditLogs(ctx, domain.NormalizeSubjectID(subjectID))
	if err != nil {
		return nil, storeErr(err)
	}
	return logs, nil
}

func (s *accessService) HealthCheck(ctx context.Context) map[string]error {
	return map[string]error{
		"store":    s.repo.Ping(ctx),
		"notifier": s.notifier.Ping(ctx),
	}
}

// Subscribe delivers the full, ordered record set to onChange once up front and
// again after every change notification. Bursts of notifications that arrive
// while a snapshot is being built collapse into one delivery.
func (s *accessService) Subscribe(ctx context.Context, onChange func([]domain.AccessRecord)) (func(), error) {
	events, cancelEvents, err := s.notifier.Subscribe(ctx)
	if err != nil {
		return nil, storeErr(err)
	}

	subCtx, stop := context.WithCancel(ctx)
	metrics.ActiveSubscribers.Inc()

	go func() {
		defer metrics.ActiveSubscribers.Dec()

		// A failed load is retried with backoff so the subscriber still gets
		// a snapshot once the store recovers, even if nothing else changes.
		backoff := snapshotRetryMin
		var retry <-chan time.Time
		if !s.deliver(subCtx, onChange) {
			retry = time.After(backoff)
		}
		for {
			select {
			case <-subCtx.Done():
				return
			case <-retry:
			case _, ok := <-events:
				if !ok {
					if subCtx.Err() == nil {
						s.logger.Warn("change notifications closed, ending subscription")
					}
					return
				}
				drain(events)
			}
			if subCtx.Err() != nil {
				return
			}
			if s.deliver(subCtx, onChange) {
				retry = nil
				backoff = snapshotRetryMin
				continue
			}
			backoff = min(backoff*2, snapshotRetryMax)
			retry = time.After(backoff)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			cancelEvents()
		})
	}, nil
}

// deliver reports whether a snapshot reached onChange.
func (s *accessService) deliver(ctx context.Context, onChange func([]domain.AccessRecord)) bool {
	records, err := s.snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to load access snapshot, will retry", "error", err)
		}
		return false
	}
	onChange(records)
	return true
}

func drain(events <-chan string) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// snapshot lists all records, skipping any that violate the record invariants.
func (s *accessService) snapshot(ctx context.Context) ([]domain.AccessRecord, error) {
	records, err := s.repo.ListRecords(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	valid := make([]domain.AccessRecord, 0, len(records))
	for _, r := range records {
		if err := engine.Validate(r); err != nil {
			s.logger.Warn("skipping malformed access record", "subject", r.SubjectID, "error", err)
			continue
		}
		valid = append(valid, r)
	}
	engine.SortByRequestedDesc(valid)
	return valid, nil
}

func (s *accessService) load(ctx context.Context, subjectID string) (*domain.AccessRecord, error) {
	rec, err := s.repo.GetRecord(ctx, subjectID)
	if err != nil {
		return nil, storeErr(err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, subjectID)
	}
	return rec, nil
}

func (s *accessService) audit(ctx context.Context, action, subjectID, actor string, from, to domain.Status) {
	entry := &domain.AuditLog{
		ID:         uuid.New().String(),
		SubjectID:  subjectID,
		Action:     action,
		Actor:      actor,
		FromStatus: from,
		ToStatus:   to,
		CreatedAt:  s.cfg.Clock(),
	}
	if err := s.repo.SaveAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to save audit log", "subject", subjectID, "action", action, "error", err)
	}
}

func (s *accessService) publish(ctx context.Context, subjectID string) {
	if err := s.notifier.Publish(ctx, subjectID); err != nil {
		s.logger.Warn("failed to publish access change", "subject", subjectID, "error", err)
	}
}

func (s *accessService) record(action string, err error) error {
	result := metrics.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrInvalidSubject):
		result = metrics.ResultInvalid
	case errors.Is(err, domain.ErrRecordNotFound):
		result = metrics.ResultNotFound
	case errors.Is(err, domain.ErrConcurrentModification), errors.Is(err, domain.ErrAlreadyExists):
		result = metrics.ResultConflict
	default:
		result = metrics.ResultError
	}
	metrics.TransitionsTotal.WithLabelValues(action, result).Inc()
	return err
}

// storeErr passes domain errors through and wraps anything else as ErrStoreUnavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrRecordNotFound,
		domain.ErrConcurrentModification,
		domain.ErrAlreadyExists,
		domain.ErrInvalidTransition,
		domain.ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
