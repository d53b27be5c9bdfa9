// Package bot – keyring.go provides credential storage using the operating
// system's native keyring (Linux: Secret Service/GNOME Keyring, macOS:
// Keychain, Windows: Credential Manager).
//
// Priority for resolving the web token:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. Environment variable (FIGHTBOT_WEB_TOKEN, loaded from .env too)
//  3. config.yaml value (least secure — plaintext on disk)
package bot

import (
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "fightbot"

	// keyringWebToken is the key name for the web auth token.
	keyringWebToken = "web_token"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__fightbot_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveWebToken resolves the web auth token using the priority chain:
// keyring → env var → config value. Updates the config in-place. Env and
// .env values are already merged into the config by the loader.
func ResolveWebToken(cfg *Config, logger *slog.Logger) {
	if val := GetKeyring(keyringWebToken); val != "" {
		cfg.Web.AuthToken = val
		logger.Debug("web token loaded from OS keyring")
		return
	}

	if cfg.Web.AuthToken != "" && !IsEnvReference(cfg.Web.AuthToken) {
		logger.Debug("web token loaded from config")
	}
}

// StoreWebToken saves the web auth token to the OS keyring.
func StoreWebToken(value string) error {
	return StoreKeyring(keyringWebToken, value)
}
