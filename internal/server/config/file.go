package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/orgdesk/internal/flagx"
	"github.com/dmitrijs2005/orgdesk/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations accept
// either Go duration strings such as "10m" or integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading configuration
// files. Fields left out of the file keep their current values.
type FileConfig struct {
	HTTPAddr           string         `json:"http_addr" yaml:"http_addr"`
	DatabaseDSN        string         `json:"database_dsn" yaml:"database_dsn"`
	TokenStore         string         `json:"token_store" yaml:"token_store"`
	RedisAddr          string         `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword      string         `json:"redis_password" yaml:"redis_password"`
	AccessTokenSecret  string         `json:"access_token_secret" yaml:"access_token_secret"`
	RefreshTokenSecret string         `json:"refresh_token_secret" yaml:"refresh_token_secret"`
	AccessTokenTTL     timex.Duration `json:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenTTL    timex.Duration `json:"refresh_token_ttl" yaml:"refresh_token_ttl"`
	TokenLeeway        timex.Duration `json:"token_leeway" yaml:"token_leeway"`
	CacheMaxEntries    int            `json:"cache_max_entries" yaml:"cache_max_entries"`
	CacheTTL           timex.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	CacheMaxAge        timex.Duration `json:"cache_max_age" yaml:"cache_max_age"`
	RateLimitPerMinute int            `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	CORSOrigins        []string       `json:"cors_origins" yaml:"cors_origins"`
	BcryptCost         int            `json:"bcrypt_cost" yaml:"bcrypt_cost"`
	LogLevel           string         `json:"log_level" yaml:"log_level"`
}

// parseFile loads configuration values from the file named by the -c or
// -config flag. Files ending in .yaml or .yml are decoded as YAML, anything
// else as JSON. Without the flag nothing is loaded. An unreadable or
// malformed file panics.
func parseFile(config *Config) {

	path := flagx.ConfigFileFlag(os.Args[1:])

	// nothing to load
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.TokenStore, c.TokenStore)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenTTL.Duration != 0 {
		config.AccessTokenTTL = c.AccessTokenTTL.Duration
	}
	if c.RefreshTokenTTL.Duration != 0 {
		config.RefreshTokenTTL = c.RefreshTokenTTL.Duration
	}
	if c.TokenLeeway.Duration != 0 {
		config.TokenLeeway = c.TokenLeeway.Duration
	}
	if c.CacheTTL.Duration != 0 {
		config.CacheTTL = c.CacheTTL.Duration
	}
	if c.CacheMaxAge.Duration != 0 {
		config.CacheMaxAge = c.CacheMaxAge.Duration
	}

	if c.CacheMaxEntries != 0 {
		config.CacheMaxEntries = c.CacheMaxEntries
	}
	if c.RateLimitPerMinute != 0 {
		config.RateLimitPerMinute = c.RateLimitPerMinute
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if len(c.CORSOrigins) > 0 {
		config.CORSOrigins = append([]string(nil), c.CORSOrigins...)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
