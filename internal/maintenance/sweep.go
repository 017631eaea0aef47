// Package maintenance runs the periodic conversation sweep: legacy import,
// retention pruning and summary repair.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/logger"
)

// Store is the subset of messaging.Service the sweep drives.
type Store interface {
	ImportAllLegacy(ctx context.Context) (int, error)
	PruneAll(ctx context.Context) (int64, error)
	RepairSummaries(ctx context.Context) (int, error)
}

// Result summarizes one sweep.
type Result struct {
	Imported int
	Pruned   int64
	Repaired int
	Duration time.Duration
	Err      error
}

// Sweeper runs the sweep on a cron schedule.
type Sweeper struct {
	store    Store
	schedule cron.Schedule
	expr     string
	log      *logger.Logger
	now      func() time.Time
}

// New parses expr (5-field cron) and builds a Sweeper.
func New(store Store, expr string, log *logger.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("maintenance: store is required")
	}
	sched, err := config.ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("maintenance: schedule %q: %w", expr, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		store:    store,
		schedule: sched,
		expr:     expr,
		log:      log.With("service", "maintenance"),
		now:      time.Now,
	}, nil
}

// NextRun returns the next fire time after t.
func (s *Sweeper) NextRun(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// RunOnce performs a single sweep. Each step runs even if an earlier one
// failed; failures are joined into Result.Err.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	start := s.now()
	var res Result
	var errs []error

	n, err := s.store.ImportAllLegacy(ctx)
	res.Imported = n
	if err != nil {
		errs = append(errs, fmt.Errorf("import legacy: %w", err))
	}

	pruned, err := s.store.PruneAll(ctx)
	res.Pruned = pruned
	if err != nil {
		errs = append(errs, fmt.Errorf("prune: %w", err))
	}

	repaired, err := s.store.RepairSummaries(ctx)
	res.Repaired = repaired
	if err != nil {
		errs = append(errs, fmt.Errorf("repair summaries: %w", err))
	}

	res.Duration = s.now().Sub(start)
	res.Err = errors.Join(errs...)
	return res
}

// Run sweeps on schedule until ctx is cancelled, then waits for an in-flight
// sweep to finish. Overlapping runs are skipped.
func (s *Sweeper) Run(ctx context.Context) {
	cl := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(cl))
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		res := s.RunOnce(ctx)
		if res.Err != nil {
			s.log.Error("sweep failed", "error", res.Err,
				"imported", res.Imported, "pruned", res.Pruned, "repaired", res.Repaired)
			return
		}
		s.log.Info("sweep complete",
			"imported", res.Imported, "pruned", res.Pruned, "repaired", res.Repaired,
			"duration", res.Duration.String())
	}))
	c.Schedule(s.schedule, job)
	c.Start()
	s.log.Info("maintenance scheduled", "schedule", s.expr, "next", s.NextRun(s.now()).Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("maintenance stopped")
}

// Start runs the sweeper on its own goroutine. The returned channel is
// closed once Run has returned, including any sweep in flight at
// cancellation.
func (s *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return done
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
