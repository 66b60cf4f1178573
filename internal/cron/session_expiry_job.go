package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/checkout-engine/pkg/logger"
)

// SessionExpiryJobParams configure the checkout session sweeper.
type SessionExpiryJobParams struct {
	Logger   *logger.Logger
	Sessions sessionExpirer
}

type sessionExpirer interface {
	ExpireStaleSessions(ctx context.Context, now time.Time) (int, error)
}

// NewSessionExpiryJob builds the job that moves overdue open sessions to
// EXPIRED. Sessions that settled in the meantime are left alone.
func NewSessionExpiryJob(params SessionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session expirer required")
	}
	return &sessionExpiryJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		now:      time.Now,
	}, nil
}

type sessionExpiryJob struct {
	logg     *logger.Logger
	sessions sessionExpirer
	now      func() time.Time
}

func (j *sessionExpiryJob) Name() string { return "session-expiry" }

func (j *sessionExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.sessions.ExpireStaleSessions(ctx, now)
	if err != nil {
		return fmt.Errorf("expire sessions: %w", err)
	}
	if expired == 0 {
		j.logg.Debug(ctx, "no stale checkout sessions")
		return nil
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"expired": expired,
		"now":     now,
	}), "checkout sessions expired")
	return nil
}
