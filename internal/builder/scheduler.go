package builder

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/watch"
)

// refresher periodically asks the watch loop for a rebuild so remote
// content is picked up without a file change.
type refresher struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

func newRefresher(clock clockwork.Clock, logger *slog.Logger) (*refresher, error) {
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &refresher{scheduler: s, logger: logger}, nil
}

// schedule adds a job triggering loop every interval and returns its id.
func (r *refresher) schedule(interval time.Duration, loop *watch.Loop) (string, error) {
	job, err := r.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			r.logger.Debug("Scheduled refresh", logfields.Trigger(watch.TriggerRefresh))
			loop.Trigger(watch.TriggerRefresh)
		}),
		gocron.WithName("refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create refresh job: %w", err)
	}
	return job.ID().String(), nil
}

func (r *refresher) start() {
	r.logger.Info("Starting refresh scheduler")
	r.scheduler.Start()
}

func (r *refresher) stop() error {
	r.logger.Info("Stopping refresh scheduler")
	return r.scheduler.Shutdown()
}
