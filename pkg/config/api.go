package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment          string
	Addr                 string
	LogLevel             string
	DatabaseURL          string
	MigrationsDir        string
	JWTSecret            string
	AdmissionWindow      time.Duration
	AdmissionMaxRequests int
	AdmissionSweepEvery  time.Duration
	TelemetryQueueSize   int
	TelemetryWorkers     int
	MetricRetention      time.Duration
	RetentionSweepEvery  time.Duration
	LiveHeartbeatEvery   time.Duration
	RateLimitRedisAddr   string
	RateLimitRedisPass   string
	RateLimitRedisDB     int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:          GetString("APP_ENV", "development"),
		Addr:                 GetString("API_ADDR", ":4000"),
		LogLevel:             GetString("LOG_LEVEL", "info"),
		DatabaseURL:          GetString("DATABASE_URL", "postgres://pulsegate:pulsegate@db:5432/pulsegate?sslmode=disable"),
		MigrationsDir:        GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:            GetString("JWT_SECRET", "supersecuresecret"),
		AdmissionWindow:      time.Duration(GetInt("ADMISSION_WINDOW_MINUTES", 15)) * time.Minute,
		AdmissionMaxRequests: GetInt("ADMISSION_MAX_REQUESTS", 1000),
		AdmissionSweepEvery:  time.Duration(GetInt("ADMISSION_SWEEP_MINUTES", 5)) * time.Minute,
		TelemetryQueueSize:   GetInt("TELEMETRY_QUEUE_SIZE", 1024),
		TelemetryWorkers:     GetInt("TELEMETRY_WORKERS", 4),
		MetricRetention:      time.Duration(GetInt("METRIC_RETENTION_DAYS", 30)) * 24 * time.Hour,
		RetentionSweepEvery:  time.Duration(GetInt("RETENTION_SWEEP_MINUTES", 60)) * time.Minute,
		LiveHeartbeatEvery:   time.Duration(GetInt("LIVE_HEARTBEAT_SECONDS", 25)) * time.Second,
		RateLimitRedisAddr:   GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:   GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:     GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
