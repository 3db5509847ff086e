// Package scheduler provides cron-based background jobs for the plan bot.
//
// Its main job is the per-minute sweep that expires idle conversation
// sessions and the daily cleanup of expired store rows.
package scheduler

import (
	"github.com/robfig/cron/v3"
)

// Cron expressions for the built-in jobs.
const (
	// ExpirySweepSchedule runs the idle-session sweep every minute.
	ExpirySweepSchedule = "* * * * *"
	// CleanupSchedule removes expired store rows once a day.
	CleanupSchedule = "30 3 * * *"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
