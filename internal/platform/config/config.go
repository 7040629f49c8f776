package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	// Recognized for deployment parity; queues run in-process.
	RedisURL string `env:"REDIS_URL" envDefault:""`

	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`
	APIPort    int `env:"API_PORT" envDefault:"8000"`

	IngestionIntervalMinutes int    `env:"INGESTION_INTERVAL_MINUTES" envDefault:"30"`
	MaxItemsPerSource        int    `env:"MAX_ITEMS_PER_SOURCE" envDefault:"100"`
	RedditClientID           string `env:"REDDIT_CLIENT_ID"`
	RedditClientSecret       string `env:"REDDIT_CLIENT_SECRET"`
	RedditUserAgent          string `env:"REDDIT_USER_AGENT" envDefault:"NewsBot/0.1"`

	ExtractInterval time.Duration `env:"EXTRACT_INTERVAL" envDefault:"10m"`
	EmbedInterval   time.Duration `env:"EMBED_INTERVAL" envDefault:"15m"`
	ScoreInterval   time.Duration `env:"SCORE_INTERVAL" envDefault:"15m"`
	BriefingTimeUTC string        `env:"BRIEFING_TIME_UTC" envDefault:"06:50"`
	EmailTimeUTC    string        `env:"EMAIL_TIME_UTC" envDefault:"07:00"`
	WorkerBatchSize int           `env:"WORKER_BATCH_SIZE" envDefault:"100"`
	ScoreBatchSize  int           `env:"SCORE_BATCH_SIZE" envDefault:"200"`

	TaskHardTimeout       time.Duration `env:"TASK_HARD_TIMEOUT" envDefault:"10m"`
	TaskSoftTimeout       time.Duration `env:"TASK_SOFT_TIMEOUT" envDefault:"9m"`
	LeaderElectionEnabled bool          `env:"LEADER_ELECTION_ENABLED" envDefault:"true"`

	OpenAIAPIKey              string        `env:"OPENAI_API_KEY"`
	AnthropicAPIKey           string        `env:"ANTHROPIC_API_KEY"`
	EmbeddingModel            string        `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-ada-002"`
	EmbeddingDimensions       int           `env:"OPENAI_EMBEDDING_DIMENSIONS" envDefault:"1536"`
	EmbeddingCircuitThreshold int           `env:"EMBEDDING_CIRCUIT_THRESHOLD" envDefault:"5"`
	EmbeddingCircuitTimeout   time.Duration `env:"EMBEDDING_CIRCUIT_TIMEOUT" envDefault:"1m"`
	LLMCheapModel             string        `env:"LLM_CHEAP_MODEL" envDefault:"gpt-4o-mini"`
	LLMStrongModel            string        `env:"LLM_STRONG_MODEL" envDefault:"gpt-4o"`
	LLMCircuitThreshold       int           `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	LLMCircuitTimeout         time.Duration `env:"LLM_CIRCUIT_TIMEOUT" envDefault:"1m"`

	MaxEmbeddingsPerHour  int `env:"MAX_EMBEDDINGS_PER_HOUR" envDefault:"1000"`
	MaxLLMCallsPerUserDay int `env:"MAX_LLM_CALLS_PER_USER_DAY" envDefault:"50"`

	AIScoringEnabled      bool    `env:"AI_SCORING_ENABLED" envDefault:"true"`
	HighSignalThreshold   float64 `env:"HIGH_SIGNAL_THRESHOLD" envDefault:"0.6"`
	DedupSimilarity       float64 `env:"DEDUP_SIMILARITY_THRESHOLD" envDefault:"0.92"`
	DedupWindowDays       int     `env:"DEDUP_WINDOW_DAYS" envDefault:"7"`
	ClusterArchiveDays    int     `env:"CLUSTER_ARCHIVE_DAYS" envDefault:"30"`
	BriefingTargetWords   int     `env:"BRIEFING_TARGET_WORDS" envDefault:"500"`
	BriefingNumItems      int     `env:"BRIEFING_NUM_ITEMS" envDefault:"10"`
	BriefingGlobalEnabled bool    `env:"BRIEFING_GLOBAL_ENABLED" envDefault:"true"`

	SMTPHost      string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	SMTPUseTLS    bool   `env:"SMTP_USE_TLS" envDefault:"true"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"briefings@newsbot.local"`
	EmailFromName string `env:"EMAIL_FROM_NAME" envDefault:"News Intelligence"`

	// Consumed by the auth collaborator in front of the API; carried here so
	// one env file configures the whole deployment.
	SecretKey                string `env:"SECRET_KEY" envDefault:"change-me-in-production"`
	AccessTokenExpireMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"10080"`
	RefreshTokenExpireDays   int    `env:"REFRESH_TOKEN_EXPIRE_DAYS" envDefault:"30"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	applyDatabaseAliases()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDatabaseAliases accepts POSTGRES_DSN as a fallback spelling of
// DATABASE_URL so older deployment manifests keep working.
func applyDatabaseAliases() {
	if hasEnv("DATABASE_URL") {
		return
	}

	if dsn, ok := os.LookupEnv("POSTGRES_DSN"); ok && strings.TrimSpace(dsn) != "" {
		os.Setenv("DATABASE_URL", strings.TrimSpace(dsn))
	}
}

func (c *Config) validate() error {
	for _, clock := range []struct {
		key   string
		value string
	}{
		{"BRIEFING_TIME_UTC", c.BriefingTimeUTC},
		{"EMAIL_TIME_UTC", c.EmailTimeUTC},
	} {
		if _, err := time.Parse("15:04", clock.value); err != nil {
			return fmt.Errorf("%s: %q is not an HH:MM clock time", clock.key, clock.value)
		}
	}

	if c.TaskSoftTimeout >= c.TaskHardTimeout {
		return fmt.Errorf("TASK_SOFT_TIMEOUT %s must be below TASK_HARD_TIMEOUT %s", c.TaskSoftTimeout, c.TaskHardTimeout)
	}

	return nil
}

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
