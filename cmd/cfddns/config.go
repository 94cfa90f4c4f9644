package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	ddns "github.com/Travis-Britz/cfddns"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

type config struct {
	APIToken     string
	ZoneID       string
	RunEvery     time.Duration
	CleanupEvery time.Duration
	DomainFile   string
	IPURLs       []string
	MetricsAddr  string
	LogLevel     logrus.Level
	LogFormat    string
}

// loadConfig reads the settings with priority ENV > INI > default.
// An empty iniPath skips the INI file.
func loadConfig(iniPath string) (*config, error) {
	file := ini.Empty()
	if iniPath != "" {
		var err error
		file, err = ini.Load(iniPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load INI file: %w", err)
		}
	}

	getValue := func(envKey, section, key, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := file.Section(section).Key(key).String(); value != "" {
			return value
		}
		return defaultValue
	}

	getSeconds := func(envKey, section, key string, defaultValue time.Duration) (time.Duration, error) {
		value := getValue(envKey, section, key, "")
		if value == "" {
			return defaultValue, nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%s must be a positive number of seconds; got %q", envKey, value)
		}
		return time.Duration(n) * time.Second, nil
	}

	var errs []error
	cfg := &config{
		APIToken:    getValue("API_TOKEN", "cloudflare", "api_token", ""),
		ZoneID:      getValue("ZONE_ID", "cloudflare", "zone_id", ""),
		DomainFile:  getValue("DOMAIN_FILE", "app", "domain_file", ddns.DefaultDomainFile),
		MetricsAddr: getValue("METRICS_ADDR", "metrics", "addr", ""),
		LogFormat:   strings.ToLower(getValue("LOG_FORMAT", "log", "format", "text")),
	}

	var err error
	if cfg.RunEvery, err = getSeconds("RUN_EVERY", "app", "run_every", ddns.DefaultInterval); err != nil {
		errs = append(errs, err)
	}
	if cfg.CleanupEvery, err = getSeconds("BLACKLIST_CLEANUP_EVERY", "app", "blacklist_cleanup_every", ddns.DefaultCleanupInterval); err != nil {
		errs = append(errs, err)
	}
	for _, u := range strings.Split(getValue("IP_URLS", "app", "ip_urls", ""), ",") {
		if u = strings.TrimSpace(u); u != "" {
			cfg.IPURLs = append(cfg.IPURLs, u)
		}
	}
	if cfg.LogLevel, err = logrus.ParseLevel(getValue("LOG_LEVEL", "log", "level", "info")); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\"; got %q", cfg.LogFormat))
	}

	if cfg.ZoneID == "" {
		errs = append(errs, errors.New("ZONE_ID is required"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetLevel(cfg.LogLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}
