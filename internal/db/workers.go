package db

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbontracker/internal/config"
)

// StartWorkers schedules the nightly metric reconcile and recommendation
// retention jobs. Each job also runs once at startup. The returned cron
// must be stopped on shutdown.
func StartWorkers(db *gorm.DB, cfg *config.Config, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	reconcile := func() {
		start := time.Now()
		n, err := ReconcileMonthlyMetrics(db)
		if err != nil {
			logger.Error("metric reconcile failed", zap.Error(err))
			return
		}
		logger.Info("metric reconcile finished", zap.Int("months", n), zap.Duration("took", time.Since(start)))
	}
	retention := func() {
		n, err := PruneDismissedRecommendations(db, cfg.RecommendationRetentionDays, time.Now())
		if err != nil {
			logger.Error("recommendation retention failed", zap.Error(err))
			return
		}
		logger.Info("recommendation retention finished", zap.Int64("deleted", n))
	}

	jobs := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"reconcile", cfg.ReconcileSchedule, reconcile},
		{"retention", cfg.RetentionSchedule, retention},
	}
	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if _, err := c.AddFunc(job.schedule, job.run); err != nil {
			return nil, fmt.Errorf("unable to schedule %s job %q: %w", job.name, job.schedule, err)
		}
		go job.run()
	}

	c.Start()
	return c, nil
}
