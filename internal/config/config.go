package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridian-lending/recon-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	LoanSystem  LoanSystemConfig  `yaml:"loan_system" mapstructure:"loan_system"`
	Extraction  ExtractionConfig  `yaml:"extraction" mapstructure:"extraction"`
	Advisor     AdvisorConfig     `yaml:"advisor" mapstructure:"advisor"`
	ReviewBoard ReviewBoardConfig `yaml:"review_board" mapstructure:"review_board"`
	DocInbox    DocInboxConfig    `yaml:"doc_inbox" mapstructure:"doc_inbox"`
	Registry    RegistryConfig    `yaml:"registry" mapstructure:"registry"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run/baseline database backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// LoanSystemConfig holds loan-origination-system credentials (JWT
// bearer flow) and the custom object names the pipeline touches.
type LoanSystemConfig struct {
	ClientID          string `yaml:"client_id" mapstructure:"client_id"`
	Username          string `yaml:"username" mapstructure:"username"`
	KeyPath           string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL          string `yaml:"login_url" mapstructure:"login_url"`
	LoanObject        string `yaml:"loan_object" mapstructure:"loan_object"`
	FeeObject         string `yaml:"fee_object" mapstructure:"fee_object"`
	OrderObject       string `yaml:"order_object" mapstructure:"order_object"`
	RequestsPerSecond int    `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int    `yaml:"burst" mapstructure:"burst"`
}

// ExtractionConfig points at the document-extraction service.
type ExtractionConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-extraction-call deadline.
func (e ExtractionConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// AdvisorConfig holds correction-advisor API settings.
type AdvisorConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Enabled reports whether advisor suggestions are configured.
func (a AdvisorConfig) Enabled() bool { return a.Key != "" }

// ReviewBoardConfig holds the ops review board credentials and
// database ids.
type ReviewBoardConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	QueueDB     string `yaml:"queue_db" mapstructure:"queue_db"`
	ExceptionDB string `yaml:"exception_db" mapstructure:"exception_db"`
}

// DocInboxConfig points at the partner document FTP inbox.
type DocInboxConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Enabled reports whether an inbox host is configured.
func (d DocInboxConfig) Enabled() bool { return d.Host != "" }

// Timeout returns the FTP dial/read deadline.
func (d DocInboxConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSecs) * time.Second
}

// RegistryConfig locates the field-mapping and tolerance table files.
type RegistryConfig struct {
	MappingsPath  string `yaml:"mappings_path" mapstructure:"mappings_path"`
	TolerancePath string `yaml:"tolerance_path" mapstructure:"tolerance_path"`
}

// PipelineConfig configures run orchestration.
type PipelineConfig struct {
	Mode              string  `yaml:"mode" mapstructure:"mode"`
	StageTimeoutSecs  int     `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	RunTimeoutSecs    int     `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	JitterFraction    float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	CircuitThreshold  int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs  int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// StageTimeout returns the per-attempt stage deadline.
func (p PipelineConfig) StageTimeout() time.Duration {
	return time.Duration(p.StageTimeoutSecs) * time.Second
}

// RunTimeout returns the whole-run wall-clock budget.
func (p PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(p.RunTimeoutSecs) * time.Second
}

// RetryConfig converts the pipeline settings into a retry policy.
func (p PipelineConfig) RetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxRetries = p.MaxRetries
	if p.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(p.InitialBackoffMs) * time.Millisecond
	}
	if p.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(p.MaxBackoffMs) * time.Millisecond
	}
	if p.BackoffMultiplier > 0 {
		cfg.Multiplier = p.BackoffMultiplier
	}
	if p.JitterFraction >= 0 {
		cfg.JitterFraction = p.JitterFraction
	}
	return cfg
}

// CircuitConfig converts the pipeline settings into a breaker policy.
func (p PipelineConfig) CircuitConfig() resilience.CircuitConfig {
	cfg := resilience.DefaultCircuitConfig()
	if p.CircuitThreshold > 0 {
		cfg.FailureThreshold = p.CircuitThreshold
	}
	if p.CircuitResetSecs > 0 {
		cfg.ResetTimeout = time.Duration(p.CircuitResetSecs) * time.Second
	}
	return cfg
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentLoans int `yaml:"max_concurrent_loans" mapstructure:"max_concurrent_loans"`
	Limit              int `yaml:"limit" mapstructure:"limit"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "recon.db")
	v.SetDefault("loan_system.login_url", "https://login.salesforce.com")
	v.SetDefault("loan_system.loan_object", "LLC_BI__Loan__c")
	v.SetDefault("loan_system.fee_object", "LLC_BI__Fee__c")
	v.SetDefault("loan_system.order_object", "Disclosure_Request__c")
	v.SetDefault("loan_system.requests_per_second", 5)
	v.SetDefault("loan_system.burst", 10)
	v.SetDefault("extraction.base_url", "http://localhost:8181")
	v.SetDefault("extraction.timeout_secs", 120)
	v.SetDefault("advisor.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("advisor.max_tokens", 1024)
	v.SetDefault("doc_inbox.port", 21)
	v.SetDefault("doc_inbox.dir", "/loans")
	v.SetDefault("doc_inbox.timeout_secs", 30)
	v.SetDefault("registry.mappings_path", "registry/mappings.yaml")
	v.SetDefault("registry.tolerance_path", "registry/tolerance.yaml")
	v.SetDefault("pipeline.mode", "demo")
	v.SetDefault("pipeline.stage_timeout_secs", 120)
	v.SetDefault("pipeline.run_timeout_secs", 900)
	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.initial_backoff_ms", 500)
	v.SetDefault("pipeline.max_backoff_ms", 30000)
	v.SetDefault("pipeline.backoff_multiplier", 2.0)
	v.SetDefault("pipeline.jitter_fraction", 0.25)
	v.SetDefault("pipeline.circuit_failure_threshold", 5)
	v.SetDefault("pipeline.circuit_reset_secs", 30)
	v.SetDefault("batch.max_concurrent_loans", 4)
	v.SetDefault("batch.limit", 20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the named command depends on. Problems are
// collected so one failed startup reports everything at once.
func (c *Config) Validate(command string) error {
	var problems []string

	need := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, key+" is required")
		}
	}

	switch command {
	case "run", "batch", "serve":
		need(c.Store.DSN, "store.dsn")
		need(c.LoanSystem.ClientID, "loan_system.client_id")
		need(c.LoanSystem.Username, "loan_system.username")
		need(c.LoanSystem.KeyPath, "loan_system.key_path")
		need(c.Registry.MappingsPath, "registry.mappings_path")
		if command == "batch" {
			need(c.ReviewBoard.Token, "review_board.token")
			need(c.ReviewBoard.QueueDB, "review_board.queue_db")
		}
		if command == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			problems = append(problems, "server.port must be > 0")
		}
	case "baseline", "runs", "status":
		need(c.Store.DSN, "store.dsn")
	default:
		return eris.Errorf("config: unknown command %q", command)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	switch c.Pipeline.Mode {
	case "demo", "production":
	default:
		problems = append(problems, "pipeline.mode must be demo or production")
	}
	if c.Batch.MaxConcurrentLoans < 1 || c.Batch.MaxConcurrentLoans > 50 {
		problems = append(problems, "batch.max_concurrent_loans must be between 1 and 50")
	}
	if c.Pipeline.MaxRetries < 0 || c.Pipeline.MaxRetries > 10 {
		problems = append(problems, "pipeline.max_retries must be between 0 and 10")
	}
	if c.Pipeline.JitterFraction < 0 || c.Pipeline.JitterFraction > 1 {
		problems = append(problems, "pipeline.jitter_fraction must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.New("config: invalid configuration:\n  - " + strings.Join(problems, "\n  - "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
