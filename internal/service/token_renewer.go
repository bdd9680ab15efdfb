package service

import (
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// TokenRenewer runs the periodic calendar token renewals of every session on one scheduler.
type TokenRenewer struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

// NewTokenRenewer starts the underlying scheduler.
func NewTokenRenewer(loc *time.Location, logger *zap.Logger) (*TokenRenewer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	return &TokenRenewer{scheduler: scheduler, logger: logger}, nil
}

// Schedule runs task every interval. Overlapping runs of the same job are skipped.
func (r *TokenRenewer) Schedule(name string, interval time.Duration, task func()) (func(), error) {
	job, err := r.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}
	id := job.ID()
	r.logger.Debug("renewal scheduled", zap.String("job", name), zap.Duration("interval", interval))

	return func() {
		if err := r.scheduler.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
			r.logger.Warn("remove renewal job failed", zap.String("job", name), zap.Error(err))
		}
	}, nil
}

// Jobs returns the number of scheduled renewals.
func (r *TokenRenewer) Jobs() int {
	return len(r.scheduler.Jobs())
}

// Shutdown stops the scheduler and waits for running jobs.
func (r *TokenRenewer) Shutdown() error {
	return r.scheduler.Shutdown()
}
