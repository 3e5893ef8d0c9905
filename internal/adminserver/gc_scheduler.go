package adminserver

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/logger"
)

// GCScheduler drives tm2pc's _clear sweep on a cron schedule, replacing the
// on-demand-only clear calls spec.md describes with the periodic sweep
// SPEC_FULL's §4.3 addition requires for a long-running process.
type GCScheduler struct {
	tm     *tm2pc.TM
	cron   *cron.Cron
	logger logger.Logger
}

func NewGCScheduler(tm *tm2pc.TM, log logger.Logger) *GCScheduler {
	return &GCScheduler{
		tm:     tm,
		cron:   cron.New(),
		logger: log,
	}
}

// Start registers the sweep at the given schedule (cron expression, e.g.
// "@every 1m" or "0 * * * *") and starts the scheduler's own goroutine.
func (s *GCScheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.tm.Clear(context.Background(), false); err != nil && s.logger != nil {
			s.logger.Error("adminserver: gc sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *GCScheduler) Stop() {
	s.cron.Stop()
}
