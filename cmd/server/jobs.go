package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/troikatech/engage-api/pkg/logger"
)

const templateSyncTimeout = 2 * time.Minute

// startJobs schedules background work. The returned scheduler is already running.
func (s *Server) startJobs() (*cron.Cron, error) {
	sched := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	if s.cfg.WhatsAppEnabled() && s.cfg.TemplateSyncCron != "" {
		if _, err := sched.AddFunc(s.cfg.TemplateSyncCron, s.syncTemplates); err != nil {
			return nil, err
		}
		logger.Log.Info("Template status sync scheduled", zap.String("spec", s.cfg.TemplateSyncCron))
	}

	sched.Start()
	return sched, nil
}

func (s *Server) syncTemplates() {
	ctx, cancel := context.WithTimeout(context.Background(), templateSyncTimeout)
	defer cancel()

	updated, err := s.handler.SyncTemplateStatuses(ctx)
	if err != nil {
		logger.Log.Warn("Template status sync failed", zap.Error(err))
		return
	}
	if updated > 0 {
		logger.Log.Info("Template statuses synced", zap.Int("updated", updated))
	}
}
