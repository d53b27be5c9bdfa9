// Package bot – config.go defines the configuration structures for the
// fight bot.
package bot

import (
	"time"

	"github.com/aryanwp/fightbot/pkg/fightbot/channels/whatsapp"
)

// Config holds all bot configuration.
type Config struct {
	// Name is the bot name used in logs.
	Name string `yaml:"name"`

	// Owner is the fallback owner address, used when the policy file does
	// not exist yet. Accepts a full address or a bare phone number.
	Owner string `yaml:"owner"`

	// PolicyPath is the JSON file persisting the owner and subadmin set.
	PolicyPath string `yaml:"policy_path"`

	// Channels configures communication channels.
	Channels ChannelsConfig `yaml:"channels"`

	// Audio configures the /ytmp3 downloader.
	Audio AudioConfig `yaml:"audio"`

	// Web configures the keepalive/status HTTP server.
	Web WebConfig `yaml:"web"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ChannelsConfig holds configuration for all channels.
type ChannelsConfig struct {
	// WhatsApp is the WhatsApp channel config.
	WhatsApp whatsapp.Config `yaml:"whatsapp"`
}

// AudioConfig configures the /ytmp3 audio downloader.
type AudioConfig struct {
	// Enabled turns the /ytmp3 command on.
	Enabled bool `yaml:"enabled"`

	// BinaryPath is the yt-dlp executable. Default resolves via PATH.
	BinaryPath string `yaml:"binary_path"`

	// DownloadDir is where fetched mp3 files land.
	DownloadDir string `yaml:"download_dir"`

	// FetchTimeout bounds a single download.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// MaxFileAge is how long downloads are kept before the cleanup job
	// removes them. 0 disables cleanup.
	MaxFileAge time.Duration `yaml:"max_file_age"`

	// CleanupSchedule is the cron spec driving the cleanup job.
	CleanupSchedule string `yaml:"cleanup_schedule"`
}

// WebConfig configures the keepalive/status HTTP server.
type WebConfig struct {
	// Enabled turns the server on.
	Enabled bool `yaml:"enabled"`

	// Listen is the address to bind ("hostname:port" or ":port").
	Listen string `yaml:"listen"`

	// AuthToken protects the /status endpoint. Empty leaves it open.
	// Supports ${VAR} references; the system keyring is consulted first.
	AuthToken string `yaml:"auth_token"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:       "FightBot",
		PolicyPath: "./data/access.json",
		Channels: ChannelsConfig{
			WhatsApp: whatsapp.DefaultConfig(),
		},
		Audio: AudioConfig{
			Enabled:         true,
			BinaryPath:      "yt-dlp",
			DownloadDir:     "./downloads",
			FetchTimeout:    3 * time.Minute,
			MaxFileAge:      24 * time.Hour,
			CleanupSchedule: "@hourly",
		},
		Web: WebConfig{
			Enabled: true,
			Listen:  ":10000",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
