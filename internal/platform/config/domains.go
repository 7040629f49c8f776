package config

import "time"

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL               string
	MaxConnections    int32
	MinConnections    int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

// IngestConfig holds source ingestion settings.
type IngestConfig struct {
	IntervalMinutes    int
	MaxItemsPerSource  int
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
}

// PipelineConfig holds the processing cadence and batch bounds.
type PipelineConfig struct {
	ExtractInterval time.Duration
	EmbedInterval   time.Duration
	ScoreInterval   time.Duration
	BriefingTimeUTC string
	EmailTimeUTC    string
	BatchSize       int
	ScoreBatchSize  int
	HardTimeout     time.Duration
	SoftTimeout     time.Duration
	LeaderElection  bool
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey           string
	Model            string
	Dimensions       int
	CircuitThreshold int
	CircuitTimeout   time.Duration
	MaxPerHour       int
}

// LLMConfig holds chat model provider settings.
type LLMConfig struct {
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	CheapModel       string
	StrongModel      string
	CircuitThreshold int
	CircuitTimeout   time.Duration
	MaxCallsPerScope int
	AIScoringEnabled bool
}

// DedupConfig holds duplicate detection settings.
type DedupConfig struct {
	SimilarityThreshold float64
	WindowDays          int
	ClusterArchiveDays  int
}

// BriefingConfig holds briefing generation settings.
type BriefingConfig struct {
	HighSignalThreshold float64
	TargetWords         int
	NumItems            int
	GlobalEnabled       bool
}

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	UseTLS   bool
	From     string
	FromName string
}

// ServerConfig holds listener ports for the API and health servers.
type ServerConfig struct {
	APIPort    int
	HealthPort int
}

// DatabaseCfg returns the database configuration extracted from Config.
func (c *Config) DatabaseCfg() DatabaseConfig {
	return DatabaseConfig{
		URL:               c.DatabaseURL,
		MaxConnections:    c.DBMaxConnections,
		MinConnections:    c.DBMinConnections,
		MaxConnIdleTime:   c.DBMaxConnIdleTime,
		MaxConnLifetime:   c.DBMaxConnLifetime,
		HealthCheckPeriod: c.DBHealthCheckPeriod,
	}
}

// IngestCfg returns the ingestion configuration.
func (c *Config) IngestCfg() IngestConfig {
	return IngestConfig{
		IntervalMinutes:    c.IngestionIntervalMinutes,
		MaxItemsPerSource:  c.MaxItemsPerSource,
		RedditClientID:     c.RedditClientID,
		RedditClientSecret: c.RedditClientSecret,
		RedditUserAgent:    c.RedditUserAgent,
	}
}

// PipelineCfg returns the processing cadence configuration.
func (c *Config) PipelineCfg() PipelineConfig {
	return PipelineConfig{
		ExtractInterval: c.ExtractInterval,
		EmbedInterval:   c.EmbedInterval,
		ScoreInterval:   c.ScoreInterval,
		BriefingTimeUTC: c.BriefingTimeUTC,
		EmailTimeUTC:    c.EmailTimeUTC,
		BatchSize:       c.WorkerBatchSize,
		ScoreBatchSize:  c.ScoreBatchSize,
		HardTimeout:     c.TaskHardTimeout,
		SoftTimeout:     c.TaskSoftTimeout,
		LeaderElection:  c.LeaderElectionEnabled,
	}
}

// EmbeddingCfg returns the embedding provider configuration.
func (c *Config) EmbeddingCfg() EmbeddingConfig {
	return EmbeddingConfig{
		APIKey:           c.OpenAIAPIKey,
		Model:            c.EmbeddingModel,
		Dimensions:       c.EmbeddingDimensions,
		CircuitThreshold: c.EmbeddingCircuitThreshold,
		CircuitTimeout:   c.EmbeddingCircuitTimeout,
		MaxPerHour:       c.MaxEmbeddingsPerHour,
	}
}

// LLMCfg returns the chat model provider configuration.
func (c *Config) LLMCfg() LLMConfig {
	return LLMConfig{
		OpenAIAPIKey:     c.OpenAIAPIKey,
		AnthropicAPIKey:  c.AnthropicAPIKey,
		CheapModel:       c.LLMCheapModel,
		StrongModel:      c.LLMStrongModel,
		CircuitThreshold: c.LLMCircuitThreshold,
		CircuitTimeout:   c.LLMCircuitTimeout,
		MaxCallsPerScope: c.MaxLLMCallsPerUserDay,
		AIScoringEnabled: c.AIScoringEnabled,
	}
}

// DedupCfg returns the duplicate detection configuration.
func (c *Config) DedupCfg() DedupConfig {
	return DedupConfig{
		SimilarityThreshold: c.DedupSimilarity,
		WindowDays:          c.DedupWindowDays,
		ClusterArchiveDays:  c.ClusterArchiveDays,
	}
}

// BriefingCfg returns the briefing generation configuration.
func (c *Config) BriefingCfg() BriefingConfig {
	return BriefingConfig{
		HighSignalThreshold: c.HighSignalThreshold,
		TargetWords:         c.BriefingTargetWords,
		NumItems:            c.BriefingNumItems,
		GlobalEnabled:       c.BriefingGlobalEnabled,
	}
}

// EmailCfg returns the SMTP delivery configuration.
func (c *Config) EmailCfg() EmailConfig {
	return EmailConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		User:     c.SMTPUser,
		Password: c.SMTPPassword,
		UseTLS:   c.SMTPUseTLS,
		From:     c.EmailFrom,
		FromName: c.EmailFromName,
	}
}

// ServerCfg returns the listener port configuration.
func (c *Config) ServerCfg() ServerConfig {
	return ServerConfig{
		APIPort:    c.APIPort,
		HealthPort: c.HealthPort,
	}
}
