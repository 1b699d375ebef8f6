package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/orgdesk/internal/flagx"
	"github.com/joho/godotenv"
)

const (
	envPrefix      = "ORGDESK_"
	defaultEnvFile = ".env"
	secretsTimeout = 10 * time.Second
)

// parseEnv loads a dotenv file, optionally seeds the environment from AWS
// Secrets Manager, and copies ORGDESK_* variables into config.
//
// The dotenv file is given by -env-file; without it ".env" is tried and may
// be absent. Variables already present in the process environment win over
// both the file and the secret. Malformed values panic, as file errors do.
func parseEnv(config *Config) {
	envFile := flagx.EnvFileFlag(os.Args[1:])
	explicit := envFile != ""
	if !explicit {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	if secretID := os.Getenv(envPrefix + "AWS_SECRET_ID"); secretID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), secretsTimeout)
		defer cancel()

		client, err := newSecretsClient(ctx, os.Getenv(envPrefix+"AWS_REGION"))
		if err != nil {
			panic(err)
		}
		if _, err := loadSecrets(ctx, client, secretID); err != nil {
			panic(err)
		}
	}

	applyEnv(config, os.LookupEnv)
}

// applyEnv copies the ORGDESK_* variables found by lookup into config.
func applyEnv(config *Config, lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				panic(err)
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(err)
			}
			*dst = d
		}
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("TOKEN_STORE", &config.TokenStore)
	str("REDIS_ADDR", &config.RedisAddr)
	str("REDIS_PASSWORD", &config.RedisPassword)
	str("ACCESS_TOKEN_SECRET", &config.AccessTokenSecret)
	str("REFRESH_TOKEN_SECRET", &config.RefreshTokenSecret)
	dur("ACCESS_TOKEN_TTL", &config.AccessTokenTTL)
	dur("REFRESH_TOKEN_TTL", &config.RefreshTokenTTL)
	dur("TOKEN_LEEWAY", &config.TokenLeeway)
	num("CACHE_MAX_ENTRIES", &config.CacheMaxEntries)
	dur("CACHE_TTL", &config.CacheTTL)
	dur("CACHE_MAX_AGE", &config.CacheMaxAge)
	num("RATE_LIMIT_PER_MINUTE", &config.RateLimitPerMinute)
	num("BCRYPT_COST", &config.BcryptCost)
	str("LOG_LEVEL", &config.LogLevel)

	if v, ok := lookup(envPrefix + "CORS_ORIGINS"); ok && v != "" {
		config.CORSOrigins = splitList(v)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
