// Package cron runs the scheduled housekeeping jobs. Today that is the
// played-request purge, which keeps the requests table from growing without
// bound across events.
package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/storage"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// Manager schedules and runs the purge job.
type Manager struct {
	cron          *cron.Cron
	store         storage.Store
	spec          string
	retentionDays int
	log           logger.Logger
}

// NewManager creates a manager running purge on the given cron spec
// (standard five-field format). Played requests older than retentionDays are
// removed.
func NewManager(store storage.Store, spec string, retentionDays int, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		cron:          cron.New(cron.WithLocation(time.Local)),
		store:         store,
		spec:          spec,
		retentionDays: retentionDays,
		log:           log.WithFields(logger.F("component", "cron")),
	}
}

// Start registers the purge job and starts the scheduler.
func (m *Manager) Start() error {
	_, err := m.cron.AddFunc(m.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := m.RunPurgeNow(ctx); err != nil {
			m.log.Error("scheduled purge failed", logger.Err(err))
		}
	})
	if err != nil {
		return err
	}

	m.cron.Start()
	m.log.Info("cron manager started",
		logger.F("spec", m.spec), logger.F("retention_days", m.retentionDays))
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.log.Info("cron manager stopped")
}

// RunPurgeNow executes the purge immediately, outside the schedule.
func (m *Manager) RunPurgeNow(ctx context.Context) error {
	start := time.Now()
	removed, err := m.store.PurgePlayed(ctx, m.retentionDays)
	if err != nil {
		return err
	}
	m.log.Info("purge completed",
		logger.F("removed", removed), logger.F("duration", time.Since(start).String()))
	return nil
}
