package dispatch

import (
	"context"
	"sync"
	"time"

	"alex/internal/shared/errors"
	"alex/internal/shared/logging"
)

// QuotaInfo is what callers see after a quota check, used to populate the
// 429 quota-exhausted response and non-exhausted accounting alike.
type QuotaInfo struct {
	Used    int64
	Limit   int64
	Remaining int64
	ResetAt time.Time
}

// QuotaError signals that the caller's daily quota is exhausted.
type QuotaError struct {
	Info QuotaInfo
}

func (e *QuotaError) Error() string { return "quota exhausted" }

// HotCounter is the optional collaborator backing shared quota counters
// (e.g. Redis) across process instances. When unreachable, the dispatch
// core falls back to process-local counters and records the degradation,
// never blocking traffic (spec §4.6.3).
type HotCounter interface {
	Increment(ctx context.Context, userID string, day string) (int64, error)
	Get(ctx context.Context, userID string, day string) (int64, bool, error)
	Reset(ctx context.Context, userID string, day string) error
}

// QuotaManager enforces the per-user daily chargeable-operation counter.
type QuotaManager struct {
	mu       sync.Mutex
	local    map[string]*localQuota
	hot      HotCounter
	limitFor func(userID string) int64
	now      func() time.Time
	logger   *logging.Logger
}

type localQuota struct {
	day  string
	used int64
}

// NewQuotaManager builds a QuotaManager. limitFor resolves the per-user
// daily limit (e.g. from the user's profile); hot may be nil, in which case
// the manager always uses process-local counters.
func NewQuotaManager(limitFor func(userID string) int64, hot HotCounter) *QuotaManager {
	return &QuotaManager{
		local:    make(map[string]*localQuota),
		hot:      hot,
		limitFor: limitFor,
		now:      time.Now,
		logger:   logging.DispatchLogger,
	}
}

func calendarDayUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func resetAtFor(day string) time.Time {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return time.Now().UTC().Add(24 * time.Hour)
	}
	return d.AddDate(0, 0, 1).UTC()
}

// Check refuses a chargeable operation if used >= limit, else returns the
// pre-increment QuotaInfo. The counter is not incremented here — callers
// increment only after the operation succeeds (spec §4.6.3).
func (q *QuotaManager) Check(ctx context.Context, userID string) (QuotaInfo, error) {
	limit := q.limitFor(userID)
	used, day, err := q.currentUsage(ctx, userID)
	if err != nil {
		return QuotaInfo{}, err
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	info := QuotaInfo{Used: used, Limit: limit, Remaining: remaining, ResetAt: resetAtFor(day)}
	if used >= limit {
		return info, &QuotaError{Info: info}
	}
	return info, nil
}

// Increment charges one operation against userID's daily counter, to be
// called only after the operation it guards has succeeded.
func (q *QuotaManager) Increment(ctx context.Context, userID string) (QuotaInfo, error) {
	day := calendarDayUTC(q.now())

	if q.hot != nil {
		used, err := q.hot.Increment(ctx, userID, day)
		if err == nil {
			limit := q.limitFor(userID)
			remaining := limit - used
			if remaining < 0 {
				remaining = 0
			}
			return QuotaInfo{Used: used, Limit: limit, Remaining: remaining, ResetAt: resetAtFor(day)}, nil
		}
		q.logger.Warn("hot quota counter unreachable for user=%s, falling back to process-local counter: %s", userID, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.local[userID]
	if !ok || entry.day != day {
		entry = &localQuota{day: day}
		q.local[userID] = entry
	}
	entry.used++
	limit := q.limitFor(userID)
	remaining := limit - entry.used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaInfo{Used: entry.used, Limit: limit, Remaining: remaining, ResetAt: resetAtFor(day)}, nil
}

// Release reverses a Check that was never followed by Increment, i.e. the
// call never reached Invoked in the dispatch state machine and so must not
// be charged. Since Check does not itself increment, Release is a no-op
// placeholder kept for symmetry with the state machine's documented
// contract ("quota is released if the call never reached Invoked").
func (q *QuotaManager) Release(context.Context, string) {}

func (q *QuotaManager) currentUsage(ctx context.Context, userID string) (int64, string, error) {
	day := calendarDayUTC(q.now())

	if q.hot != nil {
		used, ok, err := q.hot.Get(ctx, userID, day)
		if err == nil {
			if ok {
				return used, day, nil
			}
			return 0, day, nil
		}
		q.logger.Warn("hot quota counter unreachable for user=%s, falling back to process-local counter: %s", userID, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.local[userID]
	if !ok || entry.day != day {
		return 0, day, nil
	}
	return entry.used, day, nil
}

// AsTypedError converts a QuotaError into the shared permanent-error
// taxonomy so HTTP handlers can classify it uniformly with other errors.
func AsTypedError(err *QuotaError) error {
	return errors.NewPermanentError(err, "quota exhausted")
}
