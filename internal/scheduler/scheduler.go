// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/madakixo/jayy-bot/internal/bridge"
	"github.com/madakixo/jayy-bot/internal/directory"
	"github.com/madakixo/jayy-bot/internal/store"
)

// Scheduler runs the background sweeps: idle-session eviction,
// pending-unlock expiry, and the payment verify poll that covers dropped
// webhook deliveries.
type Scheduler struct {
	dir    *directory.Directory
	store  store.Store
	bridge *bridge.Bridge
	cron   *cron.Cron
}

// New creates a Scheduler over the given directory, store, and bridge.
func New(dir *directory.Directory, st store.Store, br *bridge.Bridge) *Scheduler {
	return &Scheduler{
		dir:    dir,
		store:  st,
		bridge: br,
		cron:   cron.New(),
	}
}

// Start registers the sweep jobs and starts the cron ticker. Jobs derive
// their own bounded contexts; ctx cancellation is handled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		schedule string
		name     string
		run      func()
	}{
		{"@every 1m", "session sweep", func() {
			if n := s.dir.Sweep(time.Now()); n > 0 {
				slog.Info("swept idle sessions", "evicted", n)
			}
		}},
		{"@every 1h", "pending unlock expiry", func() {
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			n, err := s.store.ExpirePendingUnlocks(jobCtx)
			if err != nil {
				slog.Error("expire pending unlocks failed", "error", err)
				return
			}
			if n > 0 {
				slog.Info("expired pending unlocks", "removed", n)
			}
		}},
		{"@every 1m", "payment verify poll", func() {
			jobCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
			defer cancel()
			s.bridge.PollPending(jobCtx)
		}},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.schedule, job.run); err != nil {
			return err
		}
		slog.Info("scheduled job", "name", job.name, "schedule", job.schedule)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron ticker and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
