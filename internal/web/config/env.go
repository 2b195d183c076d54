package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/mnistlab/internal/flagx"
)

// parseEnv applies environment overrides. DATABASE_URL and INFERENCE_API_URL
// are the two the deployment always sets.
func parseEnv(config *Config) {
	flagx.EnvString(&config.HTTPAddr, "HTTP_ADDR")
	flagx.EnvString(&config.DatabaseDSN, "DATABASE_URL")
	flagx.EnvString(&config.InferenceAPIURL, "INFERENCE_API_URL")
	flagx.EnvString(&config.SessionSecret, "SESSION_SECRET")
	flagx.EnvString(&config.RedisAddr, "REDIS_ADDR")
	flagx.EnvString(&config.RedisPassword, "REDIS_PASSWORD")
	flagx.EnvString(&config.SeedUsersPath, "SEED_USERS_PATH")
	flagx.EnvString(&config.ModelVersion, "MODEL_VERSION")
	flagx.EnvString(&config.LogLevel, "LOG_LEVEL")
	flagx.EnvString(&config.S3Bucket, "S3_BUCKET")
	flagx.EnvString(&config.S3Region, "S3_REGION")
	flagx.EnvString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	flagx.EnvString(&config.S3AccessKey, "S3_ACCESS_KEY")
	flagx.EnvString(&config.S3SecretKey, "S3_SECRET_KEY")

	for name, dst := range map[string]*time.Duration{
		"INFERENCE_TIMEOUT": &config.InferenceTimeout,
		"HEALTH_TIMEOUT":    &config.HealthTimeout,
		"SESSION_TTL":       &config.SessionTTL,
		"SHUTDOWN_TIMEOUT":  &config.ShutdownTimeout,
	} {
		if !flagx.EnvDuration(dst, name) {
			panic(fmt.Errorf("invalid %s", name))
		}
	}

	for name, dst := range map[string]*int{
		"DB_MAX_OPEN_CONNS": &config.DBMaxOpenConns,
		"DB_MAX_IDLE_CONNS": &config.DBMaxIdleConns,
	} {
		if !flagx.EnvInt(dst, name) {
			panic(fmt.Errorf("invalid %s", name))
		}
	}

	if v, ok := os.LookupEnv("SECURE_COOKIE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(fmt.Errorf("invalid SECURE_COOKIE"))
		}
		config.SecureCookie = b
	}
}
