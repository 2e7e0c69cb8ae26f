// Package config loads and validates the sweepcrew configuration from a
// yaml file and SWEEPCREW_ environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// CacheType selects the cache backend.
type CacheType string

const (
	CacheTypeMemory CacheType = "memory"
	CacheTypeRedis  CacheType = "redis"
)

// Eligibility selects which users count toward deletion consensus.
type Eligibility string

const (
	// EligibilityAll counts every registered user.
	EligibilityAll Eligibility = "all"
	// EligibilityNonAdmin counts only non-admin users.
	EligibilityNonAdmin Eligibility = "non_admin"
)

// TrashSuffix and PermanentSuffix name the sibling directories holding the
// trash and permanent tiers of each library root.
const (
	TrashSuffix     = "_trash"
	PermanentSuffix = "_permanent"
)

// Config holds the configuration for the sweepcrew server.
type Config struct {
	// Listen is the address the server will listen on.
	Listen string `yaml:"listen" mapstructure:"listen"`
	// ServerURL is the external base URL of the server.
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`
	// DatabasePath is the path of the sqlite database file.
	DatabasePath string `yaml:"database_path" mapstructure:"database_path"`
	// SessionMaxAge is the maximum age of a login session in seconds.
	SessionMaxAge int `yaml:"session_max_age" mapstructure:"session_max_age"`

	// Libraries are the media library roots to manage. Each root is expected
	// to contain "Movies" and "TV Shows" directories.
	Libraries []string `yaml:"libraries" mapstructure:"libraries"`
	// RetentionDays is the grace period trashed media spends in the trash
	// tier before the reaper deletes it.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days"`
	// ScanInterval is the interval in minutes between library scans.
	ScanInterval int `yaml:"scan_interval" mapstructure:"scan_interval"`
	// ReapInterval is the interval in minutes between reaper runs.
	ReapInterval int `yaml:"reap_interval" mapstructure:"reap_interval"`
	// Eligible selects which users count toward consensus.
	Eligible Eligibility `yaml:"eligible" mapstructure:"eligible"`
	// Watch enables filesystem event watching on the library roots.
	Watch bool `yaml:"watch" mapstructure:"watch"`

	// Admin is the bootstrap admin account, created on first start.
	Admin *AdminConfig `yaml:"admin" mapstructure:"admin"`
	// TMDB holds the poster lookup configuration.
	TMDB *TMDBConfig `yaml:"tmdb" mapstructure:"tmdb"`
	// Cache holds the configuration for the cache engine.
	Cache *CacheConfig `yaml:"cache" mapstructure:"cache"`
}

// AdminConfig holds the bootstrap admin credentials.
type AdminConfig struct {
	// Username is the admin login name.
	Username string `yaml:"username" mapstructure:"username"`
	// Password is the initial admin password.
	Password string `yaml:"password" mapstructure:"password"`
}

// TMDBConfig holds the poster lookup configuration.
type TMDBConfig struct {
	// Enabled indicates whether poster lookup is enabled.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// APIKey is the TMDB API key.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// PosterDir is the local directory poster images are cached in.
	PosterDir string `yaml:"poster_dir" mapstructure:"poster_dir"`
}

// CacheConfig holds the configuration for the cache engine.
type CacheConfig struct {
	// Type is the type of cache engine to use (e.g., "memory", "redis").
	Type CacheType `yaml:"type" mapstructure:"type"`
	// RedisURL is the URL for the Redis cache if using Redis.
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
}

// Load reads the configuration from the specified path and returns a Config
// struct. If path is empty, it searches the usual locations.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("SWEEPCREW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sweepcrew")
		v.AddConfigPath("/etc/sweepcrew")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		log.Debug("Using config file", "file", v.ConfigFileUsed())
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "0.0.0.0:3002")
	v.SetDefault("server_url", "http://localhost:3002")
	v.SetDefault("database_path", "sweepcrew.db")
	v.SetDefault("session_max_age", 172800) // 48 hours

	v.SetDefault("retention_days", 30)
	v.SetDefault("scan_interval", 60)
	v.SetDefault("reap_interval", 60)
	v.SetDefault("eligible", string(EligibilityAll))
	v.SetDefault("watch", false)

	v.SetDefault("tmdb.enabled", false)
	v.SetDefault("tmdb.poster_dir", "posters")

	v.SetDefault("cache.type", CacheTypeMemory)
	v.SetDefault("cache.redis_url", "")
}

// validateConfig validates the configuration.
func validateConfig(c *Config) error {
	if len(c.Libraries) == 0 {
		return fmt.Errorf("at least one library root is required")
	}
	for i, root := range c.Libraries {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("library root must be an absolute path: %s", root)
		}
		c.Libraries[i] = filepath.Clean(root)
	}

	switch c.Eligible {
	case EligibilityAll, EligibilityNonAdmin:
	default:
		return fmt.Errorf("eligible must be %q or %q, got %q", EligibilityAll, EligibilityNonAdmin, c.Eligible)
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive")
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("reap_interval must be positive")
	}

	if c.TMDB != nil && c.TMDB.Enabled && c.TMDB.APIKey == "" {
		return fmt.Errorf("tmdb API key is required when tmdb is enabled")
	}
	if c.Cache != nil && c.Cache.Type == CacheTypeRedis && c.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required when cache type is redis")
	}

	if c.Admin != nil {
		if c.Admin.Username == "" || c.Admin.Password == "" {
			return fmt.Errorf("admin username and password must both be set")
		}
	}

	return nil
}

// EnsureLibraryDirs verifies every library root exists and is readable, and
// creates the trash and permanent sibling directories next to it.
func (c *Config) EnsureLibraryDirs() error {
	for _, root := range c.Libraries {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("library root %s: %w", root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("library root %s is not a directory", root)
		}
		for _, tier := range []string{TrashDir(root), PermanentDir(root)} {
			if err := os.MkdirAll(tier, 0o755); err != nil {
				return fmt.Errorf("failed to create tier directory %s: %w", tier, err)
			}
		}
	}
	return nil
}

// Retention returns the trash grace period as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// TrashDir returns the trash tier sibling of a library root.
func TrashDir(root string) string {
	return root + TrashSuffix
}

// PermanentDir returns the permanent tier sibling of a library root.
func PermanentDir(root string) string {
	return root + PermanentSuffix
}

// RootFor returns the library root a path belongs to, preferring the longest
// matching prefix. The path may be in the active, trash or permanent tier of
// the root. Reports false if no root matches.
func (c *Config) RootFor(path string) (string, bool) {
	var best string
	for _, root := range c.Libraries {
		for _, base := range []string{root, TrashDir(root), PermanentDir(root)} {
			if path == base || strings.HasPrefix(path, base+string(filepath.Separator)) {
				if len(root) > len(best) {
					best = root
				}
			}
		}
	}
	return best, best != ""
}
