package application

import (
	"context"
	"log"
	"time"

	"marketplace-core/internal/observability/metrics"
	settlement "marketplace-core/internal/settlement/domain"
	"marketplace-core/internal/settlement/notify"
)

// Scheduler triggers daily settlement runs for yesterday's window. Engine
// level errors are retried with exponential backoff; exhaustion raises an
// alert and returns. The loop never panics the host.
type Scheduler struct {
	engine         *Engine
	dailyAt        string
	recipientTypes []settlement.RecipientType
	retryAttempts  int
	backoffBase    time.Duration
	notifier       notify.AlertNotifier
	sleep          func(ctx context.Context, d time.Duration)
	logger         *log.Logger
}

// NewScheduler constructs a Scheduler. The notifier may be nil.
func NewScheduler(engine *Engine, cfg SchedulerConfig, notifier notify.AlertNotifier, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	types := make([]settlement.RecipientType, 0, len(cfg.RecipientTypes))
	for _, t := range cfg.RecipientTypes {
		rt := settlement.RecipientType(t)
		if settlement.IsValidRecipientType(rt) {
			types = append(types, rt)
		}
	}
	if len(types) == 0 {
		// Empty filter settles all recipient types in one run.
		types = []settlement.RecipientType{""}
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		// At least one engine run, even for configs built without the loader.
		attempts = 1
	}
	return &Scheduler{
		engine:         engine,
		dailyAt:        cfg.DailyAt,
		recipientTypes: types,
		retryAttempts:  attempts,
		backoffBase:    cfg.BackoffBase(),
		notifier:       notifier,
		sleep:          sleepCtx,
		logger:         logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.engine == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.RunOnce(ctx, now.UTC())
		}
	}
}

// RunOnce settles yesterday's window for every configured recipient type.
// Exported so an admin trigger can reuse the retry policy.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) {
	periodStart, periodEnd := yesterdayWindow(now)
	for _, recipientType := range s.recipientTypes {
		s.runWithRetry(ctx, periodStart, periodEnd, recipientType)
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

func (s *Scheduler) runWithRetry(ctx context.Context, periodStart, periodEnd time.Time, recipientType settlement.RecipientType) {
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			metrics.IncSchedulerRetry()
			s.sleep(ctx, s.backoffBase<<uint(attempt-1))
			if ctx.Err() != nil {
				return
			}
		}
		result, err := s.engine.Run(ctx, periodStart, periodEnd, recipientType)
		if err == nil {
			if result.Deferred {
				s.logger.Printf("settlement schedule: run deferred: period=%s type=%s",
					periodStart.Format("2006-01-02"), recipientType)
			}
			return
		}
		lastErr = err
		s.logger.Printf("settlement schedule: run error: period=%s type=%s attempt=%d err=%v",
			periodStart.Format("2006-01-02"), recipientType, attempt+1, err)
	}

	metrics.IncSchedulerExhausted()
	s.logger.Printf("settlement schedule: retries exhausted: period=%s type=%s attempts=%d err=%v",
		periodStart.Format("2006-01-02"), recipientType, s.retryAttempts, lastErr)
	if s.notifier != nil {
		msg := notify.AlertMessage{
			PeriodStart:   periodStart.Format(time.RFC3339),
			PeriodEnd:     periodEnd.Format(time.RFC3339),
			RecipientType: string(recipientType),
			Attempts:      s.retryAttempts,
		}
		if lastErr != nil {
			msg.LastError = lastErr.Error()
		}
		if err := s.notifier.Notify(ctx, msg); err != nil {
			s.logger.Printf("settlement schedule: alert notify error: %v", err)
		}
	}
}

func yesterdayWindow(now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -1), today
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
