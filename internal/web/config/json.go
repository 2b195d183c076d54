package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/mnistlab/internal/flagx"
	"github.com/dmitrijs2005/mnistlab/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Absent keys leave the
// current value untouched.
type JsonConfig struct {
	HTTPAddr          string         `json:"http_addr"`
	DatabaseDSN       string         `json:"database_dsn"`
	InferenceAPIURL   string         `json:"inference_api_url"`
	InferenceTimeout  timex.Duration `json:"inference_timeout"`
	HealthTimeout     timex.Duration `json:"health_timeout"`
	SessionSecret     string         `json:"session_secret"`
	SessionTTL        timex.Duration `json:"session_ttl"`
	SecureCookie      *bool          `json:"secure_cookie"`
	RedisAddr         string         `json:"redis_addr"`
	RedisPassword     string         `json:"redis_password"`
	DBMaxOpenConns    int            `json:"db_max_open_conns"`
	DBMaxIdleConns    int            `json:"db_max_idle_conns"`
	DBConnMaxLifetime timex.Duration `json:"db_conn_max_lifetime"`
	SeedUsersPath     string         `json:"seed_users_path"`
	ModelVersion      string         `json:"model_version"`
	LogLevel          string         `json:"log_level"`
	ShutdownTimeout   timex.Duration `json:"shutdown_timeout"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	S3AccessKey       string         `json:"s3_access_key"`
	S3SecretKey       string         `json:"s3_secret_key"`
}

// parseJson overlays values from the file named by -c/-config, if any.
// An unreadable or malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.InferenceAPIURL, c.InferenceAPIURL)
	setDuration(&config.InferenceTimeout, c.InferenceTimeout)
	setDuration(&config.HealthTimeout, c.HealthTimeout)
	setString(&config.SessionSecret, c.SessionSecret)
	setDuration(&config.SessionTTL, c.SessionTTL)
	if c.SecureCookie != nil {
		config.SecureCookie = *c.SecureCookie
	}
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.DBMaxOpenConns, c.DBMaxOpenConns)
	setInt(&config.DBMaxIdleConns, c.DBMaxIdleConns)
	setDuration(&config.DBConnMaxLifetime, c.DBConnMaxLifetime)
	setString(&config.SeedUsersPath, c.SeedUsersPath)
	setString(&config.ModelVersion, c.ModelVersion)
	setString(&config.LogLevel, c.LogLevel)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
