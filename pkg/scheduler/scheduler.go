// Package scheduler reruns the sweep batch on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Task is one batch run. A non-nil error other than context cancellation
// stops the scheduler.
type Task func(ctx context.Context) error

// Config holds the schedule of a Scheduler.
type Config struct {
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@hourly" or "@every 6h". Empty means run once.
	Schedule string
	Logger   *logrus.Logger
}

// Scheduler runs a Task once and then on every tick of its schedule.
// Ticks that arrive while the previous run is still going are skipped.
type Scheduler struct {
	schedule cron.Schedule
	expr     string
	logger   *logrus.Logger
}

// New parses the schedule.
func New(config Config) (*Scheduler, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	s := &Scheduler{
		expr:   strings.TrimSpace(config.Schedule),
		logger: config.Logger,
	}
	if s.expr == "" {
		return s, nil
	}

	schedule, err := cron.ParseStandard(s.expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", s.expr, err)
	}
	s.schedule = schedule
	return s, nil
}

// Recurring reports whether the task runs more than once.
func (s *Scheduler) Recurring() bool {
	return s.schedule != nil
}

// Run executes task immediately and, when a schedule is set, again on every
// tick until ctx is done or a run fails. It waits for an in-flight run
// before returning.
func (s *Scheduler) Run(ctx context.Context, task Task) error {
	if err := task(ctx); err != nil {
		return err
	}
	if !s.Recurring() {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		fatalErr error
	)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		s.logger.WithField("schedule", s.expr).Info("Scheduled run starting")
		if err := task(ctx); err != nil && !errors.Is(err, context.Canceled) {
			once.Do(func() {
				fatalErr = err
				cancel()
			})
		}
	}))

	s.logger.WithFields(logrus.Fields{
		"schedule": s.expr,
		"next":     s.schedule.Next(time.Now()),
	}).Info("Scheduler started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")

	if fatalErr != nil {
		return fatalErr
	}
	return ctx.Err()
}

// cronLogger adapts logrus to cron.Logger
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{"source": "cron"}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
