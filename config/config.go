package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const appName = "rssnotify"

// Config holds the options recognised by the notifier. Durations are kept in
// seconds to match the options file.
type Config struct {
	MsgFormat      string
	MaxStories     int
	UpdateInterval int
	MaxLinkLength  int
	EntryCacheSize int
	FetchTimeout   int
	FetchRetries   int
	ShortenerURL   string
	UserAgent      string

	// Seeds applied when the worker starts
	Feeds         map[string]string
	Subscriptions map[string][]string
}

// File is the on-disk representation. Nil fields were not present in the file.
type File struct {
	MsgFormat      *string             `toml:"MSG_FORMAT"`
	MaxStories     *int                `toml:"MAX_STORIES"`
	UpdateInterval *int                `toml:"UPDATE_INTERVAL"`
	MaxLinkLength  *int                `toml:"MAX_LINK_LENGTH"`
	EntryCacheSize *int                `toml:"ENTRY_CACHE_SIZE"`
	FetchTimeout   *int                `toml:"FETCH_TIMEOUT"`
	FetchRetries   *int                `toml:"FETCH_RETRIES"`
	ShortenerURL   *string             `toml:"SHORTENER_URL"`
	UserAgent      *string             `toml:"USER_AGENT"`
	Feeds          map[string]string   `toml:"FEEDS"`
	Subscriptions  map[string][]string `toml:"SUBSCRIPTIONS"`
}

// Defaults returns the configuration used when no options file overrides it
func Defaults() Config {
	return Config{
		MsgFormat:      "{0} > {1} > {2}",
		MaxStories:     5,
		UpdateInterval: 30,
		MaxLinkLength:  50,
		EntryCacheSize: 100,
		FetchTimeout:   30,
		FetchRetries:   2,
		ShortenerURL:   "https://is.gd/create.php",
		UserAgent:      "rssnotify/1.0",
		Feeds:          map[string]string{},
		Subscriptions:  map[string][]string{},
	}
}

// Merge returns base with every field present in f applied over it. Neither
// argument is modified.
func Merge(base Config, f File) Config {
	out := base
	out.Feeds = make(map[string]string, len(base.Feeds))
	for id, url := range base.Feeds {
		out.Feeds[id] = url
	}
	out.Subscriptions = make(map[string][]string, len(base.Subscriptions))
	for id, channels := range base.Subscriptions {
		out.Subscriptions[id] = append([]string(nil), channels...)
	}

	if f.MsgFormat != nil {
		out.MsgFormat = *f.MsgFormat
	}
	if f.MaxStories != nil {
		out.MaxStories = *f.MaxStories
	}
	if f.UpdateInterval != nil {
		out.UpdateInterval = *f.UpdateInterval
	}
	if f.MaxLinkLength != nil {
		out.MaxLinkLength = *f.MaxLinkLength
	}
	if f.EntryCacheSize != nil {
		out.EntryCacheSize = *f.EntryCacheSize
	}
	if f.FetchTimeout != nil {
		out.FetchTimeout = *f.FetchTimeout
	}
	if f.FetchRetries != nil {
		out.FetchRetries = *f.FetchRetries
	}
	if f.ShortenerURL != nil {
		out.ShortenerURL = *f.ShortenerURL
	}
	if f.UserAgent != nil {
		out.UserAgent = *f.UserAgent
	}
	for id, url := range f.Feeds {
		out.Feeds[id] = url
	}
	for id, channels := range f.Subscriptions {
		out.Subscriptions[id] = append([]string(nil), channels...)
	}

	return out
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

func (c Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// Validate reports the first invalid option
func (c Config) Validate() error {
	if c.MaxStories <= 0 {
		return errors.New("MAX_STORIES must be a positive number")
	}
	if c.EntryCacheSize <= 0 {
		return errors.New("ENTRY_CACHE_SIZE must be a positive number")
	}
	if c.UpdateInterval <= 0 {
		return errors.New("UPDATE_INTERVAL must be a positive number of seconds")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("FETCH_TIMEOUT must be a positive number of seconds")
	}
	if c.MaxLinkLength < 0 {
		return errors.New("MAX_LINK_LENGTH must not be negative")
	}
	if c.FetchRetries < 0 {
		return errors.New("FETCH_RETRIES must not be negative")
	}
	for id := range c.Subscriptions {
		if _, ok := c.Feeds[id]; !ok {
			return fmt.Errorf("SUBSCRIPTIONS references feed %q which is not in FEEDS", id)
		}
	}
	return nil
}

// DefaultConfigPath is the options file used when --config is not given
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// DefaultDatabasePath is the SQLite database used when --database is not given
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, appName, appName+".db")
}

// LoadConfig reads the options file at path and merges it over the defaults.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	defaults := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var file File
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg := Merge(defaults, file)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &cfg, nil
}
