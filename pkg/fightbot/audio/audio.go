// Package audio fetches songs as mp3 files via yt-dlp, resolving free-text
// queries through YouTube search.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when the download finished but no mp3 file
// appeared in the download directory.
var ErrNotFound = errors.New("audio file not found after download")

// IsNotFound reports whether err is the missing-result error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Config holds settings for the downloader.
type Config struct {
	// BinaryPath is the path to the yt-dlp binary. If empty, the binary
	// is located via exec.LookPath.
	BinaryPath string

	// DownloadDir is where extracted mp3 files land. Created on demand.
	DownloadDir string

	// FetchTimeout bounds a single download. Default: 3m.
	FetchTimeout time.Duration
}

// Downloader runs yt-dlp searches and hands back the resulting mp3 path.
type Downloader struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a downloader. The yt-dlp binary path is resolved via
// Config.BinaryPath or exec.LookPath.
func New(cfg Config, logger *slog.Logger) *Downloader {
	if cfg.BinaryPath == "" {
		if p, err := exec.LookPath("yt-dlp"); err == nil {
			cfg.BinaryPath = p
		} else {
			cfg.BinaryPath = "yt-dlp"
		}
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "./downloads"
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 3 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Downloader{
		cfg:    cfg,
		logger: logger.With("component", "audio"),
	}
}

// Fetch downloads the top search result for a query as mp3 and returns
// the local file path. yt-dlp writes the file name from the video title,
// so the newest mp3 in the download directory is taken as the result.
func (d *Downloader) Fetch(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("empty query")
	}

	if err := os.MkdirAll(d.cfg.DownloadDir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
	defer cancel()

	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--no-warnings",
		"-o", filepath.Join(d.cfg.DownloadDir, "%(title)s.%(ext)s"),
		"ytsearch1:" + query,
	}

	d.logger.Info("running yt-dlp", "query", query)
	started := time.Now()

	cmd := exec.CommandContext(ctx, d.cfg.BinaryPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errOutput := stderr.String()
		if len(errOutput) > 500 {
			errOutput = errOutput[:500]
		}
		return "", fmt.Errorf("yt-dlp: %w: %s", err, errOutput)
	}

	path, err := d.newestMP3(started)
	if err != nil {
		return "", err
	}

	d.logger.Info("audio downloaded",
		"query", query,
		"path", path,
		"duration_ms", time.Since(started).Milliseconds())
	return path, nil
}

// newestMP3 returns the most recently modified mp3 in the download
// directory. since guards against handing back a stale file when the
// download silently produced nothing.
func (d *Downloader) newestMP3(since time.Time) (string, error) {
	entries, err := os.ReadDir(d.cfg.DownloadDir)
	if err != nil {
		return "", fmt.Errorf("reading download dir: %w", err)
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".mp3") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestTime) {
			newest = e.Name()
			newestTime = info.ModTime()
		}
	}

	if newest == "" || newestTime.Before(since.Add(-time.Second)) {
		return "", ErrNotFound
	}
	return filepath.Join(d.cfg.DownloadDir, newest), nil
}
