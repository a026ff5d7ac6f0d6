package config

import (
	"time"
)

// Config is the root application configuration, loaded from a YAML file.
type Config struct {
	Logger     Logger             `yaml:"logger"`
	HTTPClient HTTPClient         `yaml:"http_client"`
	Pipeline   Pipeline           `yaml:"pipeline"`
	Services   map[string]Service `yaml:"services"`
	Hosts      Hosts              `yaml:"hosts"`
	Catalog    Catalog            `yaml:"catalog"`
	Bounty     Bounty             `yaml:"bounty"`
	Artifacts  Artifacts          `yaml:"artifacts"`
	Inference  Inference          `yaml:"inference"`
}

type Logger struct {
	Level string `yaml:"level"`
	// Format selects "json" for log collectors; anything else logs text.
	Format string `yaml:"format"`
}

// HTTPClient holds settings applied to every outbound resty client.
type HTTPClient struct {
	Debug            bool            `yaml:"debug"`
	RetryCount       int             `yaml:"retry_count"`
	RetryWaitTime    time.Duration   `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration   `yaml:"retry_max_wait_time"`
	Timeout          time.Duration   `yaml:"timeout"`
	TLSClientConfig  TLSClientConfig `yaml:"tls_client_config"`
	Proxy            Proxy           `yaml:"proxy"`
}

type TLSClientConfig struct {
	// Verify defaults to true when unset.
	Verify *bool `yaml:"verify"`
}

type Proxy struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Pipeline holds the finding lifecycle tunables. The confidence cutoffs are
// deployment configuration, not hardcoded law; pointers distinguish "unset"
// from an explicit zero.
type Pipeline struct {
	MinPresenceConfidence  *float64      `yaml:"min_presence_confidence"`
	MinFixConfidence       *float64      `yaml:"min_fix_confidence"`
	AutoApproveConfidence  *float64      `yaml:"auto_approve_confidence"`
	MaxFixAttempts         int           `yaml:"max_fix_attempts"`
	Workers                int           `yaml:"workers"`
	IngestJobs             int           `yaml:"ingest_jobs"`
	IngestInterval         time.Duration `yaml:"ingest_interval"`
	SubmissionPollInterval time.Duration `yaml:"submission_poll_interval"`
}

// Service describes the protective envelope around one external dependency:
// its rate-limiter quota, breaker thresholds, and per-call deadline.
type Service struct {
	RatePerSecond    float64       `yaml:"rate_per_second"`
	Burst            int           `yaml:"burst"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

// Hosts holds repository host credentials.
type Hosts struct {
	GitHub GitHubHost `yaml:"github"`
	GitLab GitLabHost `yaml:"gitlab"`
}

type GitHubHost struct {
	Token string `yaml:"token"`
}

type GitLabHost struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// Catalog holds vulnerability catalog sync settings.
type Catalog struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// Bounty holds bounty platform polling settings.
type Bounty struct {
	Algora        Platform      `yaml:"algora"`
	Polar         Platform      `yaml:"polar"`
	MinimumAmount float64       `yaml:"minimum_amount"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

type Platform struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// Artifacts holds evidence archive settings.
type Artifacts struct {
	Dir string `yaml:"dir"`
	S3  S3     `yaml:"s3"`
}

type S3 struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
}

// Inference selects the analysis backend for presence detection and fix
// generation: "pattern" for catalog pattern matching, "gemini" for the
// inference backend.
type Inference struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}
