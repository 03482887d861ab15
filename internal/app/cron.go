package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aiassist/core/internal/config"
	"github.com/aiassist/core/internal/modules/analytics"
	pkgcron "github.com/aiassist/core/internal/pkg/cron"
	"github.com/aiassist/core/internal/pkg/nativelog"
	"go.uber.org/zap"
)

const logRetention = 14 * 24 * time.Hour

// registerCronJobs registers the scheduled maintenance jobs.
func registerCronJobs(sched *pkgcron.Scheduler, cfg *config.AppConfig, deps Deps, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	// Mongo expires events with a TTL index; the SQL table needs a sweep.
	if sink, ok := deps.Sink.(*analytics.GormSink); ok && cfg.Analytics.RetentionDays > 0 {
		sched.Register(pkgcron.Job{
			Name:        "purge_analytics",
			Description: "Delete analytics events past the retention period",
			Interval:    24 * time.Hour,
			Fn: func(ctx context.Context) error {
				cutoff := time.Now().AddDate(0, 0, -cfg.Analytics.RetentionDays)
				n, err := sink.Purge(ctx, cutoff)
				if err != nil {
					cronLogger.Warn("purge analytics failed", zap.Error(err))
					return err
				}
				cronLogger.Info("purged analytics events", zap.Int64("deleted", n))
				return nil
			},
		})
	}

	logDir := nativelog.ResolveDir(cfg.LogDir())
	sched.Register(pkgcron.Job{
		Name:        "cleanup_logs",
		Description: "Remove native log files older than two weeks",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := removeOldLogs(logDir, time.Now().Add(-logRetention))
			if err != nil {
				cronLogger.Warn("cleanup logs failed", zap.Error(err))
				return err
			}
			cronLogger.Info("cleaned up log files", zap.Int("deleted", n))
			return nil
		},
	})
}

func removeOldLogs(dir string, before time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
