package scheduler

import (
	"github.com/robfig/cron/v3"
)

// CronScheduler runs recurring maintenance jobs (media catalogue reloads,
// stats snapshot logging) on standard 5-field cron expressions.
type CronScheduler struct {
	cron *cron.Cron
}

// NewCronScheduler creates and starts a cron scheduler with panic recovery.
func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &CronScheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression. It returns an
// error if the expression is invalid.
func (s *CronScheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *CronScheduler) Stop() {
	s.cron.Stop()
}
