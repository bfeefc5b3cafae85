package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "YTMDL_"

// applyEnv overlays YTMDL_* environment variables onto cfg
func applyEnv(cfg *Config) error {
	if v := getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT: %w", envPrefix, err)
		}
		cfg.Server.Port = port
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	// GIN_MODE is honoured without prefix, as gin itself does
	if v := os.Getenv("GIN_MODE"); v != "" {
		cfg.Server.GinMode = v
	}
	if v := getenv("LIBRARY_DIR"); v != "" {
		cfg.Paths.LibraryDir = v
	}
	if v := getenv("TEMP_DIR"); v != "" {
		cfg.Paths.TempDir = v
	}
	if v := getenv("INDEX_PATH"); v != "" {
		cfg.Paths.IndexPath = v
	}
	if v := getenv("AUDIO_FORMAT"); v != "" {
		cfg.Audio.Format = v
	}
	if v := getenv("AUDIO_QUALITY"); v != "" {
		cfg.Audio.Quality = v
	}
	if v := getenv("SKIP_EXISTING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sSKIP_EXISTING: %w", envPrefix, err)
		}
		cfg.Audio.SkipExisting = b
	}
	if v := getenv("LYRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sLYRICS: %w", envPrefix, err)
		}
		cfg.Lyrics.Enabled = b
	}
	if v := getenv("PROXY_URL"); v != "" {
		cfg.Metadata.ProxyURL = v
	}
	if v := getenv("COOKIES_FILE"); v != "" {
		cfg.Metadata.CookiesFile = v
	}
	if v := getenv("JOB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sJOB_TIMEOUT: %w", envPrefix, err)
		}
		cfg.Jobs.JobTimeout = Duration{d}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}
