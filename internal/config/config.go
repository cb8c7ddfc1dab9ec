package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all server settings, populated from the environment.
type Config struct {
	Addr           string
	DataDir        string
	UserToken      string
	AdminToken     string
	SiteURL        string
	MaxUploadBytes int64
	JPEGQuality    int
	MaxWidth       int
	JournalPath    string
}

func Load() *Config {
	return &Config{
		Addr:           getEnv("PHOTOWALL_ADDR", ":8080"),
		DataDir:        getEnv("PHOTOWALL_DATA_DIR", "data"),
		UserToken:      getEnv("PHOTOWALL_USER_TOKEN", ""),
		AdminToken:     getEnv("PHOTOWALL_ADMIN_TOKEN", ""),
		SiteURL:        getEnv("PHOTOWALL_SITE_URL", "the website"),
		MaxUploadBytes: getEnvInt64("PHOTOWALL_MAX_UPLOAD_BYTES", 10000000),
		JPEGQuality:    getEnvInt("PHOTOWALL_JPEG_QUALITY", 65),
		MaxWidth:       getEnvInt("PHOTOWALL_MAX_WIDTH", 1920),
		JournalPath:    getEnv("PHOTOWALL_JOURNAL_PATH", "photowall.db"),
	}
}

// DefaultCaption is attached to uploads that carry no description and
// to stored images whose caption sidecar is missing.
func (c *Config) DefaultCaption() string {
	return fmt.Sprintf("Upload your photo on %s! (Code: %s)", c.SiteURL, c.UserToken)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
