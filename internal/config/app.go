package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/VitaminP8/commentree/internal/comment"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageREST     = "rest"
)

type App struct {
	Storage  string
	HTTPAddr string
	LogLevel string
	PageSize int
	// MaxSections bounds the comment sections kept in memory by serve.
	MaxSections int
	JWTSecret   string
	SeedPosts   []string
	API         API
	Database    Database
}

// API configures the remote comment API client.
type API struct {
	BaseURL      string
	Username     string
	Password     string
	AccessToken  string
	RefreshToken string
	Timeout      time.Duration
}

type Database struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
}

// Load builds the configuration from the environment. Only the settings the
// selected storage needs are required.
func Load() (*App, error) {
	cfg := &App{
		Storage:     GetEnvDefault("STORAGE", StorageMemory),
		HTTPAddr:    GetEnvDefault("HTTP_ADDR", ":8080"),
		LogLevel:    GetEnvDefault("LOG_LEVEL", "info"),
		PageSize:    comment.ClampPageSize(GetEnvInt("COMMENTS_PAGE_SIZE", comment.DefaultPageSize)),
		MaxSections: GetEnvInt("MAX_SECTIONS", 1024),
		JWTSecret:   GetEnvDefault("JWT_SECRET", ""),
		SeedPosts:   splitList(GetEnvDefault("SEED_POSTS", "")),
		API: API{
			BaseURL:      strings.TrimRight(GetEnvDefault("API_BASE_URL", "http://localhost:8000"), "/"),
			Username:     GetEnvDefault("API_USERNAME", ""),
			Password:     GetEnvDefault("API_PASSWORD", ""),
			AccessToken:  GetEnvDefault("API_ACCESS_TOKEN", ""),
			RefreshToken: GetEnvDefault("API_REFRESH_TOKEN", ""),
			Timeout:      GetEnvDuration("API_TIMEOUT", 10*time.Second),
		},
	}

	switch cfg.Storage {
	case StorageMemory, StorageREST:
	case StoragePostgres:
		cfg.Database = Database{
			Host:     GetEnv("DB_HOST"),
			User:     GetEnv("DB_USER"),
			Password: GetEnv("DB_PASSWORD"),
			Name:     GetEnv("DB_NAME"),
			Port:     GetEnvDefault("DB_PORT", "5432"),
			SSLMode:  GetEnvDefault("DB_SSLMODE", "disable"),
		}
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
