// Package audio – janitor.go removes stale downloads on a cron schedule
// so long-running deployments do not fill the disk with fetched mp3s.
package audio

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor deletes downloads older than a configured age.
type Janitor struct {
	dir    string
	maxAge time.Duration
	cron   *cron.Cron
	logger *slog.Logger
}

// NewJanitor creates a janitor for a download directory. maxAge <= 0
// disables it.
func NewJanitor(dir string, maxAge time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		dir:    dir,
		maxAge: maxAge,
		logger: logger.With("component", "audio-janitor"),
	}
}

// Start registers the cleanup job on the given cron spec ("@hourly",
// "*/30 * * * *", ...) and begins running it.
func (j *Janitor) Start(schedule string) error {
	if j.maxAge <= 0 {
		return nil
	}

	j.cron = cron.New()
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return err
	}
	j.cron.Start()

	j.logger.Info("download cleanup scheduled",
		"schedule", schedule,
		"max_age", j.maxAge)
	return nil
}

// Stop halts the cron scheduler. Blocks until a running sweep finishes.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// sweep removes expired mp3 files. Individual failures are logged and
// skipped so one bad file never blocks the rest.
func (j *Janitor) sweep() {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Warn("cleanup read failed", "dir", j.dir, "error", err)
		}
		return
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".mp3") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, e.Name())
		if err := os.Remove(path); err != nil {
			j.logger.Warn("cleanup remove failed", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("stale downloads removed", "count", removed)
	}
}
