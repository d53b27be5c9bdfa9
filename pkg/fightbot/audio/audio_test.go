package audio

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func writeFile(t *testing.T, dir, name string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}
	return path
}

func TestNewDefaults(t *testing.T) {
	t.Run("fills zero values", func(t *testing.T) {
		d := New(Config{}, testLogger())

		if d.cfg.BinaryPath == "" {
			t.Error("expected binary path resolved")
		}
		if d.cfg.DownloadDir != "./downloads" {
			t.Errorf("download dir = %q", d.cfg.DownloadDir)
		}
		if d.cfg.FetchTimeout != 3*time.Minute {
			t.Errorf("timeout = %v", d.cfg.FetchTimeout)
		}
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		d := New(Config{
			BinaryPath:   "/opt/yt-dlp",
			DownloadDir:  "/tmp/dl",
			FetchTimeout: time.Minute,
		}, testLogger())

		if d.cfg.BinaryPath != "/opt/yt-dlp" {
			t.Errorf("binary = %q", d.cfg.BinaryPath)
		}
		if d.cfg.DownloadDir != "/tmp/dl" {
			t.Errorf("dir = %q", d.cfg.DownloadDir)
		}
	})
}

func TestNewestMP3(t *testing.T) {
	t.Run("picks the most recent mp3", func(t *testing.T) {
		dir := t.TempDir()
		now := time.Now()
		writeFile(t, dir, "old.mp3", now.Add(-time.Hour))
		want := writeFile(t, dir, "new.mp3", now)
		writeFile(t, dir, "song.webm", now.Add(time.Minute))

		d := New(Config{DownloadDir: dir}, testLogger())
		got, err := d.newestMP3(now.Add(-2 * time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("mixed-case extension still matches", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "SONG.MP3", time.Now())

		d := New(Config{DownloadDir: dir}, testLogger())
		if _, err := d.newestMP3(time.Now().Add(-time.Minute)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("stale files do not count as results", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "old.mp3", time.Now().Add(-time.Hour))

		d := New(Config{DownloadDir: dir}, testLogger())
		if _, err := d.newestMP3(time.Now()); !IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("empty directory reports not found", func(t *testing.T) {
		d := New(Config{DownloadDir: t.TempDir()}, testLogger())
		if _, err := d.newestMP3(time.Now().Add(-time.Minute)); !IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestJanitorSweep(t *testing.T) {
	t.Run("removes only expired mp3 files", func(t *testing.T) {
		dir := t.TempDir()
		now := time.Now()
		expired := writeFile(t, dir, "expired.mp3", now.Add(-2*time.Hour))
		fresh := writeFile(t, dir, "fresh.mp3", now)
		other := writeFile(t, dir, "notes.txt", now.Add(-2*time.Hour))

		j := NewJanitor(dir, time.Hour, testLogger())
		j.sweep()

		if _, err := os.Stat(expired); !os.IsNotExist(err) {
			t.Error("expired mp3 should be removed")
		}
		if _, err := os.Stat(fresh); err != nil {
			t.Error("fresh mp3 should survive")
		}
		if _, err := os.Stat(other); err != nil {
			t.Error("non-mp3 files should survive")
		}
	})

	t.Run("missing directory is not an error", func(t *testing.T) {
		j := NewJanitor(filepath.Join(t.TempDir(), "nope"), time.Hour, testLogger())
		j.sweep()
	})

	t.Run("zero max age never starts", func(t *testing.T) {
		j := NewJanitor(t.TempDir(), 0, testLogger())
		if err := j.Start("@hourly"); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		if j.cron != nil {
			t.Error("expected cron to stay nil when disabled")
		}
	})

	t.Run("bad schedule is rejected", func(t *testing.T) {
		j := NewJanitor(t.TempDir(), time.Hour, testLogger())
		if err := j.Start("not a cron spec"); err == nil {
			t.Error("expected error for bad schedule")
		}
	})
}
