package config

import (
	"crypto/tls"
	"time"
)

// BaseHTTPConfig holds common HTTP client configuration settings.
type BaseHTTPConfig struct {
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	Timeout          time.Duration
	TLSClientConfig  *tls.Config
	Proxy            string
}

// RestyHTTPClientConfig holds additional configuration settings for the resty http client.
type RestyHTTPClientConfig struct {
	BaseHTTPConfig
	Debug bool
}

// DefaultHTTPConfig returns the base configuration applicable to all HTTP clients.
func DefaultHTTPConfig() BaseHTTPConfig {
	return BaseHTTPConfig{
		RetryCount:       3,
		RetryWaitTime:    1 * time.Second,
		RetryMaxWaitTime: 5 * time.Second,
		Timeout:          10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12, // Enforce a minimum TLS version
		},
		Proxy: "",
	}
}

// DefaultRestyConfig returns a specific http config for resty.
func DefaultRestyConfig() RestyHTTPClientConfig {
	return RestyHTTPClientConfig{
		BaseHTTPConfig: DefaultHTTPConfig(),
		Debug:          false,
	}
}

// DefaultPipeline returns the default lifecycle tunables. The confidence
// gates default here and are overridden per deployment.
func DefaultPipeline() Pipeline {
	minPresence := 0.5
	minFix := 0.6
	autoApprove := 0.8
	return Pipeline{
		MinPresenceConfidence:  &minPresence,
		MinFixConfidence:       &minFix,
		AutoApproveConfidence:  &autoApprove,
		MaxFixAttempts:         3,
		Workers:                4,
		IngestJobs:             4,
		IngestInterval:         2 * time.Minute,
		SubmissionPollInterval: 1 * time.Minute,
	}
}

// DefaultService returns the protective defaults for an external dependency
// that has no explicit services entry.
func DefaultService() Service {
	return Service{
		RatePerSecond:    5,
		Burst:            10,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		CallTimeout:      15 * time.Second,
	}
}

// MinPresence returns the configured minimum presence confidence or the default.
func (p Pipeline) MinPresence() float64 {
	if p.MinPresenceConfidence != nil {
		return *p.MinPresenceConfidence
	}
	return *DefaultPipeline().MinPresenceConfidence
}

// MinFix returns the configured minimum fix confidence or the default.
func (p Pipeline) MinFix() float64 {
	if p.MinFixConfidence != nil {
		return *p.MinFixConfidence
	}
	return *DefaultPipeline().MinFixConfidence
}

// AutoApprove returns the configured auto-approve confidence or the default.
func (p Pipeline) AutoApprove() float64 {
	if p.AutoApproveConfidence != nil {
		return *p.AutoApproveConfidence
	}
	return *DefaultPipeline().AutoApproveConfidence
}
