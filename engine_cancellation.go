package authcore

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// keyedMutex serializes suspension decisions per account so that two
// concurrent cancellations crossing the threshold cannot both insert a
// penalty row. Entries are reference counted and removed when idle.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) lock(key string) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

func (k *keyedMutex) unlock(key string) {
	k.mu.Lock()
	entry := k.entries[key]
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}

// CancellationInput describes one ride cancellation to record.
type CancellationInput struct {
	AccountID         string
	RideID            string
	Type              CancellationType
	Reason            string
	MinutesBeforeRide int
	Note              string
}

// CancellationResult reports the outcome of recording a cancellation:
// the month-to-date driver count after the insert, and whether this call
// produced a warning or a suspension.
type CancellationResult struct {
	MonthCount int
	Warned     bool
	Suspended  bool
}

// RecordCancellation persists a cancellation and applies the monthly
// penalty policy. Only driver-initiated cancellations count toward the
// policy; rider cancellations are stored and nothing else. At WarningCount
// a warning event is emitted, at TriggerCount and above the account is
// suspended for the configured number of days. The decision runs under a
// per-account lock and the store's uniqueness guarantee backs it up, so at
// most one active penalty row exists per account.
func (e *Engine) RecordCancellation(ctx context.Context, in CancellationInput) (*CancellationResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if in.AccountID == "" || in.RideID == "" {
		return nil, errors.New("authcore: cancellation requires account and ride ids")
	}
	if in.Type != CancelDriver && in.Type != CancelRider {
		return nil, errors.New("authcore: unknown cancellation type")
	}

	now := time.Now().UTC()
	rec := &CancellationRecord{
		ID:                uuid.NewString(),
		AccountID:         in.AccountID,
		RideID:            in.RideID,
		Type:              in.Type,
		Reason:            in.Reason,
		MinutesBeforeRide: in.MinutesBeforeRide,
		Note:              in.Note,
		Month:             int(now.Month()),
		Year:              now.Year(),
		CreatedAt:         now,
	}
	if err := e.store.Cancellations().Insert(ctx, rec); err != nil {
		return nil, err
	}
	e.metricInc(MetricCancellationRecorded)

	if in.Type != CancelDriver {
		return &CancellationResult{}, nil
	}

	count, err := e.store.Cancellations().CountByMonth(ctx, in.AccountID, CancelDriver, rec.Month, rec.Year)
	if err != nil {
		return nil, err
	}
	result := &CancellationResult{MonthCount: count}

	switch {
	case count >= e.config.Suspension.TriggerCount:
		suspended, err := e.applySuspension(ctx, in.AccountID, count, now)
		if err != nil {
			return nil, err
		}
		result.Suspended = suspended
	case count >= e.config.Suspension.WarningCount:
		result.Warned = true
		e.emit(SecurityEvent{
			EventType:   "cancellation_warning",
			Severity:    SeverityMedium,
			AccountID:   in.AccountID,
			Description: "monthly driver cancellations approaching suspension threshold",
			Context: map[string]string{
				"count": strconv.Itoa(count),
			},
		})
	}
	return result, nil
}

// applySuspension creates the penalty row and flips the account to
// suspended. Returns false without error when an active penalty already
// exists, whether found by the pre-check or reported by the store.
func (e *Engine) applySuspension(ctx context.Context, accountID string, count int, now time.Time) (bool, error) {
	e.suspendMu.lock(accountID)
	defer e.suspendMu.unlock(accountID)

	existing, err := e.store.Cancellations().ActiveSuspension(ctx, accountID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	days := e.config.Suspension.DurationDays
	rec := &SuspensionRecord{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		PenaltyType:  "EXCESSIVE_CANCELLATION",
		StartDate:    now,
		EndDate:      now.AddDate(0, 0, days),
		DurationDays: days,
		Active:       true,
	}
	if err := e.store.Cancellations().InsertSuspension(ctx, rec); err != nil {
		if errors.Is(err, ErrSuspensionExists) {
			return false, nil
		}
		return false, err
	}

	if err := e.Suspend(ctx, accountID, "excessive monthly cancellations"); err != nil {
		return false, err
	}

	e.metricInc(MetricSuspensionApplied)
	e.emit(SecurityEvent{
		EventType:   "suspension_applied",
		Severity:    SeverityHigh,
		AccountID:   accountID,
		Description: "monthly driver cancellation threshold reached",
		Context: map[string]string{
			"count":         strconv.Itoa(count),
			"duration_days": strconv.Itoa(days),
			"end_date":      rec.EndDate.Format(time.RFC3339),
		},
	})
	return true, nil
}

// IsSuspended reports whether the account carries a live penalty. A row
// whose end date has passed reads as not suspended even before the sweep
// deactivates it.
func (e *Engine) IsSuspended(ctx context.Context, accountID string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	rec, err := e.store.Cancellations().ActiveSuspension(ctx, accountID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return rec.EndDate.After(time.Now().UTC()), nil
}

// SweepExpiredSuspensions deactivates penalty rows past their end date and
// reactivates the affected accounts. Accounts that lost verification in
// the meantime stay suspended and are excluded from the returned count;
// run the sweep periodically from a scheduler.
func (e *Engine) SweepExpiredSuspensions(ctx context.Context) (reactivated int, err error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	accountIDs, err := e.store.Cancellations().DeactivateExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	for _, id := range accountIDs {
		if err := e.Reactivate(ctx, id); err != nil {
			if errors.Is(err, ErrNotFullyVerified) {
				e.logger.Warn("suspension expired but account not fully verified, left suspended",
					zap.String("account_id", id))
				continue
			}
			e.logger.Warn("reactivation after suspension expiry failed",
				zap.String("account_id", id), zap.Error(err))
			continue
		}
		reactivated++
	}

	if len(accountIDs) > 0 {
		e.emit(SecurityEvent{
			EventType:   "suspension_sweep",
			Severity:    SeverityLow,
			Description: "expired suspensions deactivated",
			Context: map[string]string{
				"expired":     strconv.Itoa(len(accountIDs)),
				"reactivated": strconv.Itoa(reactivated),
			},
		})
	}
	return reactivated, nil
}
