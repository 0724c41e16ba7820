package utils

import (
	"os"
	"path/filepath"
	"time"

	"github.com/MackHatch/etl-studio/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Generated reports stay around long enough for operators to download them.
const reportTTL = 7 * 24 * time.Hour

// Orphaned temp downloads only survive a worker crash mid-run; sweep them fast.
const tempDownloadTTL = 6 * time.Hour

// CleanupExpiredFiles removes files in dir older than the TTL that match the pattern.
func CleanupExpiredFiles(dir, pattern string, ttl time.Duration) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		config.Logger.Error("Cleanup glob failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > ttl {
			if err := os.Remove(path); err != nil {
				config.Logger.Warn("Failed to delete expired file",
					zap.String("path", path), zap.Error(err))
				continue
			}
			config.Logger.Info("Deleted expired file", zap.String("path", path))
		}
	}
}

// RunScheduledCleanup sweeps generated error reports and orphaned temp CSV
// downloads on a fixed schedule. Blocks; run it in a goroutine.
func RunScheduledCleanup() {
	c := cron.New()

	_, err := c.AddFunc("@hourly", func() {
		CleanupExpiredFiles(ReportDir, "import_errors_*.xlsx", reportTTL)
		CleanupExpiredFiles(os.TempDir(), "import-*.csv", tempDownloadTTL)
	})
	if err != nil {
		config.Logger.Error("Failed to schedule cleanup job", zap.Error(err))
		return
	}

	c.Start()
	config.Logger.Info("Scheduled cleanup started")
	select {} // keep the cron scheduler alive
}
