package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lukasbauer/habitvoice/internal/metrics"
	"github.com/lukasbauer/habitvoice/internal/notifications"
	"github.com/lukasbauer/habitvoice/internal/store"
)

// DefaultReminderSchedule fires at 20:00 server time.
const DefaultReminderSchedule = "0 20 * * *"

// TargetSource lists users to remind. *store.Store implements it.
type TargetSource interface {
	ListReminderTargets(ctx context.Context, day time.Time) ([]store.ReminderTarget, error)
}

// ReminderSender delivers one reminder. *notifications.APNsClient implements it.
type ReminderSender interface {
	SendHabitReminder(deviceToken string, r notifications.HabitReminder) error
}

// ReminderJob pushes an evening reminder to every user who still has
// habits open for the day.
type ReminderJob struct {
	targets  TargetSource
	sender   ReminderSender
	logger   *log.Logger
	schedule string
	cron     *cron.Cron
	now      func() time.Time
}

// NewReminderJob creates the job; an empty schedule uses the default.
func NewReminderJob(targets TargetSource, sender ReminderSender, logger *log.Logger, schedule string) *ReminderJob {
	if schedule == "" {
		schedule = DefaultReminderSchedule
	}
	return &ReminderJob{
		targets:  targets,
		sender:   sender,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start registers the schedule and begins the background scheduler.
func (j *ReminderJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("reminders: bad schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Printf("ReminderJob: started (schedule=%q)", j.schedule)
	return nil
}

// Stop waits for a running reminder pass to finish.
func (j *ReminderJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Println("ReminderJob: stopped")
}

// RunOnce sends today's reminders and returns how many pushes succeeded.
func (j *ReminderJob) RunOnce(ctx context.Context) int {
	day := j.now()
	targets, err := j.targets.ListReminderTargets(ctx, day)
	if err != nil {
		j.logger.Printf("ReminderJob: failed to list targets: %v", err)
		return 0
	}

	sent := 0
	for _, t := range targets {
		r := notifications.HabitReminder{Pending: t.Pending, Day: day}
		for _, tok := range t.Tokens {
			if err := j.sender.SendHabitReminder(tok, r); err != nil {
				j.logger.Printf("ReminderJob: push to user %s failed: %v", t.UserID, err)
				continue
			}
			sent++
		}
	}
	metrics.RemindersSent.Add(float64(sent))
	j.logger.Printf("ReminderJob: sent %d reminders to %d users", sent, len(targets))
	return sent
}
