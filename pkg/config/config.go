package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Ranking      RankingConfig
	Snapshot     SnapshotConfig
	Realtime     RealtimeConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRAILMARKS_APP_ENV" required:"true"`
	Port         string `envconfig:"TRAILMARKS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRAILMARKS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRAILMARKS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRAILMARKS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRAILMARKS_DB_DSN"`
	Driver string `envconfig:"TRAILMARKS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TRAILMARKS_DB_HOST"`
	LegacyPort     int    `envconfig:"TRAILMARKS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TRAILMARKS_DB_USER"`
	LegacyPassword string `envconfig:"TRAILMARKS_DB_PASSWORD"`
	LegacyName     string `envconfig:"TRAILMARKS_DB_NAME"`
	LegacySSLMode  string `envconfig:"TRAILMARKS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRAILMARKS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRAILMARKS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRAILMARKS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRAILMARKS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TRAILMARKS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TRAILMARKS_REDIS_ADDR"`
	Password     string        `envconfig:"TRAILMARKS_REDIS_PASSWORD"`
	DB           int           `envconfig:"TRAILMARKS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TRAILMARKS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRAILMARKS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRAILMARKS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRAILMARKS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRAILMARKS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TRAILMARKS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TRAILMARKS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TRAILMARKS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TRAILMARKS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TRAILMARKS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TRAILMARKS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TRAILMARKS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TRAILMARKS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TRAILMARKS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PointsTopic         string `envconfig:"TRAILMARKS_PUBSUB_POINTS_TOPIC" default:"tm-point-events"`
	PointsSubscription  string `envconfig:"TRAILMARKS_PUBSUB_POINTS_SUBSCRIPTION" required:"true"`
	RankingTopic        string `envconfig:"TRAILMARKS_PUBSUB_RANKING_TOPIC" default:"tm-ranking-events"`
	RankingSubscription string `envconfig:"TRAILMARKS_PUBSUB_RANKING_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TRAILMARKS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TRAILMARKS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TRAILMARKS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type RankingConfig struct {
	BatchInterval     time.Duration `envconfig:"TRAILMARKS_RANKING_BATCH_INTERVAL" default:"1h"`
	StageChunkSize    int           `envconfig:"TRAILMARKS_RANKING_STAGE_CHUNK_SIZE" default:"500"`
	GenerationKeepage int           `envconfig:"TRAILMARKS_RANKING_GENERATIONS_KEPT" default:"3"`
}

type SnapshotConfig struct {
	TopN int `envconfig:"TRAILMARKS_SNAPSHOT_TOP_N" default:"100"`
}

type RealtimeConfig struct {
	BackoffBase time.Duration `envconfig:"TRAILMARKS_REALTIME_BACKOFF_BASE" default:"1s"`
	BackoffCap  time.Duration `envconfig:"TRAILMARKS_REALTIME_BACKOFF_CAP" default:"30s"`
	MaxAttempts int           `envconfig:"TRAILMARKS_REALTIME_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TRAILMARKS_CRON_INTERVAL" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
