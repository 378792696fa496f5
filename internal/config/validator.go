package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Validate checks configuration values after viper has loaded them.
func Validate() error {
	var errors []string

	if viper.GetString("db.dsn") == "" {
		errors = append(errors, "db.dsn must not be empty")
	}
	if viper.GetString("server.addr") == "" {
		errors = append(errors, "server.addr must not be empty")
	}
	if mp := viper.GetInt("orchestrator.max_parallel"); mp < 1 {
		errors = append(errors, fmt.Sprintf("orchestrator.max_parallel must be at least 1, got: %d", mp))
	}

	if viper.IsSet("github.sync_interval") {
		var interval time.Duration
		if d := viper.GetDuration("github.sync_interval"); d != 0 {
			interval = d
		} else if s := viper.GetInt("github.sync_interval"); s != 0 {
			// bare integers are seconds
			interval = time.Duration(s) * time.Second
		}
		if interval <= 0 {
			errors = append(errors, fmt.Sprintf("github.sync_interval must be positive, got: %v", interval))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// SyncInterval resolves the configured sync interval, accepting both
// duration strings and bare seconds.
func SyncInterval() time.Duration {
	if d := viper.GetDuration("github.sync_interval"); d > 0 {
		return d
	}
	if s := viper.GetInt("github.sync_interval"); s > 0 {
		return time.Duration(s) * time.Second
	}
	return 300 * time.Second
}
