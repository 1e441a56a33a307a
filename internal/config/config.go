package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// StorageBackend selects how the JSON documents are persisted.
type StorageBackend string

const (
	BackendFile   StorageBackend = "file"
	BackendSQLite StorageBackend = "sqlite"
)

// Config holds application configuration
type Config struct {
	TelegramToken      string
	AdminUserIDs       []int64
	PublicReviewChatID int64
	AdminReviewChatID  int64
	TicketChatID       int64
	DataFile           string
	PendingFile        string
	SettingsFile       string
	StorageBackend     StorageBackend
	DatabasePath       string
	VerifyServerURL    string
	VerifyListenAddr   string
	LogLevel           string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN environment variable is required")
	}

	adminIDsStr := os.Getenv("ADMIN_USER_IDS")
	if adminIDsStr == "" {
		return nil, fmt.Errorf("ADMIN_USER_IDS environment variable is required")
	}
	adminIDs, err := parseAdminIDs(adminIDsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_USER_IDS: %w", err)
	}

	cfg := &Config{
		TelegramToken: token,
		AdminUserIDs:  adminIDs,
	}

	publicChat, err := requireChatID("PUBLIC_REVIEW_CHAT_ID")
	if err != nil {
		return nil, err
	}
	adminChat, err := requireChatID("ADMIN_REVIEW_CHAT_ID")
	if err != nil {
		return nil, err
	}
	cfg.PublicReviewChatID = publicChat
	cfg.AdminReviewChatID = adminChat

	// Tickets default to the admin review chat when no dedicated forum
	// supergroup is configured.
	cfg.TicketChatID = cfg.LookupEnvOrInt64("TICKET_CHAT_ID", adminChat)

	cfg.DataFile = cfg.LookupEnvOrString("DATA_FILE", "./data/data.json")
	cfg.PendingFile = cfg.LookupEnvOrString("PENDING_FILE", "./data/pending.json")
	cfg.SettingsFile = cfg.LookupEnvOrString("SETTINGS_FILE", "./data/bot_settings.json")
	cfg.DatabasePath = cfg.LookupEnvOrString("DATABASE_PATH", "./data/bot.db")
	cfg.VerifyServerURL = cfg.LookupEnvOrString("VERIFY_SERVER_URL", "http://localhost:3000")
	cfg.VerifyListenAddr = cfg.LookupEnvOrString("VERIFY_LISTEN_ADDR", ":3000")
	cfg.LogLevel = cfg.LookupEnvOrString("LOG_LEVEL", "INFO")

	backend := StorageBackend(strings.ToLower(cfg.LookupEnvOrString("STORAGE_BACKEND", string(BackendFile))))
	switch backend {
	case BackendFile, BackendSQLite:
		cfg.StorageBackend = backend
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND '%s': must be 'file' or 'sqlite'", backend)
	}

	return cfg, nil
}

// IsAdmin reports whether the given user is a configured operator.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func requireChatID(key string) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, fmt.Errorf("%s environment variable is required", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return id, nil
}

// parseAdminIDs parses comma-separated admin user IDs
func parseAdminIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin ID '%s': %w", part, err)
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one admin ID is required")
	}

	return ids, nil
}
