// Package config loads the engine configuration from a YAML file, .env files
// and HAMSTER_* environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/projecthamster/hamster-sub000/internal/store"
	"github.com/projecthamster/hamster-sub000/pkg/hday"
)

const envPrefix = "HAMSTER_"

// Config is the user-facing configuration.
type Config struct {
	DBPath           string   `yaml:"db_path"`
	DayStart         string   `yaml:"day_start"`
	UnsortedLabel    string   `yaml:"unsorted_label"`
	Location         string   `yaml:"location"`
	LogMode          string   `yaml:"log_mode"`
	WatchInterval    string   `yaml:"watch_interval"`
	AutocompleteTags []string `yaml:"autocomplete_tags"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:        "hamster.db",
		DayStart:      "00:00",
		UnsortedLabel: "Unsorted",
		LogMode:       "development",
		WatchInterval: "5s",
	}
}

// Load reads yamlPath (skipped when empty or missing), then the given .env
// files, then the process environment.
func Load(yamlPath string, envFiles ...string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", yamlPath, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("failed to read %s: %w", yamlPath, err)
		}
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return cfg, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	set("DB_PATH", &c.DBPath)
	set("DAY_START", &c.DayStart)
	set("UNSORTED_LABEL", &c.UnsortedLabel)
	set("LOCATION", &c.Location)
	set("LOG_MODE", &c.LogMode)
	set("WATCH_INTERVAL", &c.WatchInterval)

	if v, ok := os.LookupEnv(envPrefix + "AUTOCOMPLETE_TAGS"); ok {
		c.AutocompleteTags = nil
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				c.AutocompleteTags = append(c.AutocompleteTags, tag)
			}
		}
	}
}

// Validate checks the fields that need parsing.
func (c Config) Validate() error {
	if _, err := hday.ParseClock(c.DayStart); err != nil {
		return fmt.Errorf("invalid day_start %q: %w", c.DayStart, err)
	}
	if _, err := c.location(); err != nil {
		return fmt.Errorf("invalid location %q: %w", c.Location, err)
	}
	if _, err := c.Interval(); err != nil {
		return fmt.Errorf("invalid watch_interval %q: %w", c.WatchInterval, err)
	}
	if strings.TrimSpace(c.UnsortedLabel) == "" {
		return errors.New("unsorted_label must not be empty")
	}
	return nil
}

func (c Config) location() (*time.Location, error) {
	if c.Location == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Location)
}

// Interval returns the watcher polling interval.
func (c Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.WatchInterval)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// Settings converts the configuration into the engine settings. The clock is
// left nil so the store uses time.Now.
func (c Config) Settings() (store.Settings, error) {
	dayStart, err := hday.ParseClock(c.DayStart)
	if err != nil {
		return store.Settings{}, err
	}
	loc, err := c.location()
	if err != nil {
		return store.Settings{}, err
	}
	return store.Settings{
		Calendar:      hday.NewCalendar(dayStart, loc),
		UnsortedLabel: strings.TrimSpace(c.UnsortedLabel),
	}, nil
}
