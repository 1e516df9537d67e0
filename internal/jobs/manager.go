package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job runs until ctx is cancelled.
type Job interface {
	Name() string
	Start(ctx context.Context) error
}

type Manager struct {
	jobs []Job
	log  *zap.Logger
}

func New(log *zap.Logger) *Manager {
	return &Manager{log: log}
}

func (m *Manager) Register(job Job) {
	m.jobs = append(m.jobs, job)
}

// Start runs every registered job and blocks until all of them return.
// The first job error cancels the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, job := range m.jobs {
		job := job
		g.Go(func() error {
			m.log.Info("job started", zap.String("job", job.Name()))
			err := job.Start(ctx)
			m.log.Info("job stopped", zap.String("job", job.Name()), zap.Error(err))
			return err
		})
	}

	return g.Wait()
}

// Interval runs fn immediately and then every period until ctx ends.
// Errors from fn are logged and the next tick tries again.
type Interval struct {
	name   string
	period time.Duration
	fn     func(ctx context.Context) error
	log    *zap.Logger
}

func Every(name string, period time.Duration, log *zap.Logger, fn func(ctx context.Context) error) *Interval {
	return &Interval{name: name, period: period, fn: fn, log: log}
}

func (j *Interval) Name() string {
	return j.name
}

func (j *Interval) Start(ctx context.Context) error {
	ticker := time.NewTicker(j.period)
	defer ticker.Stop()

	for {
		if err := j.fn(ctx); err != nil && ctx.Err() == nil {
			j.log.Warn("job run failed", zap.String("job", j.name), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
