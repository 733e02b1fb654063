// Package reminder sends pre-appointment reminders on a periodic sweep.
package reminder

import (
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scheduler wraps gocron with named cron jobs and panic reporting.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    zerolog.Logger
}

// NewScheduler builds a stopped scheduler.
func NewScheduler(logger zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("error creating scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// AddJob registers a cron job. A panicking run is logged and the schedule
// keeps running.
func (s *Scheduler) AddJob(name, crontab string, task func(), opts ...gocron.JobOption) error {
	opts = append(opts,
		gocron.WithName(name),
		gocron.WithEventListeners(
			gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
				s.logger.Error().
					Str("job", jobName).
					Interface("panic", recoverData).
					Msg("scheduled job panicked")
			}),
		),
	)
	if _, err := s.scheduler.NewJob(gocron.CronJob(crontab, false), gocron.NewTask(task), opts...); err != nil {
		return fmt.Errorf("error adding job %s: %w", name, err)
	}
	s.logger.Info().Str("job", name).Str("crontab", crontab).Msg("job scheduled")
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("error stopping scheduler: %w", err)
	}
	return nil
}
