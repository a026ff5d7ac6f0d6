package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidateConfig checks if the global configuration has valid values and
// fills in defaults for unset directives.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML global config: configuration object is nil")
	}
	if err := validateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("YAML global config: http_client directive is invalid: %w", err)
	}
	if err := validatePipelineConfig(&cfg.Pipeline); err != nil {
		return fmt.Errorf("YAML global config: pipeline directive is invalid: %w", err)
	}
	for name, svc := range cfg.Services {
		if err := validateServiceConfig(name, svc); err != nil {
			return fmt.Errorf("YAML global config: services directive is invalid: %w", err)
		}
	}
	return nil
}

func validateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return fmt.Errorf("HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", httpConfig.RetryCount)
	}

	durations := map[string]time.Duration{
		"retry_wait_time":     httpConfig.RetryWaitTime,
		"retry_max_wait_time": httpConfig.RetryMaxWaitTime,
		"timeout":             httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, 100*time.Second); err != nil {
			return err
		}
	}

	return validateProxy(&httpConfig.Proxy)
}

func validatePipelineConfig(p *Pipeline) error {
	defaults := DefaultPipeline()

	cutoffs := map[string]*float64{
		"min_presence_confidence": p.MinPresenceConfidence,
		"min_fix_confidence":      p.MinFixConfidence,
		"auto_approve_confidence": p.AutoApproveConfidence,
	}
	for name, v := range cutoffs {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be within [0,1]: %v", name, *v)
		}
	}

	if p.MaxFixAttempts < 0 {
		return fmt.Errorf("max_fix_attempts cannot be negative: %d", p.MaxFixAttempts)
	}
	if p.MaxFixAttempts == 0 {
		p.MaxFixAttempts = defaults.MaxFixAttempts
	}
	if p.Workers <= 0 {
		p.Workers = defaults.Workers
	}
	if p.IngestJobs <= 0 {
		p.IngestJobs = defaults.IngestJobs
	}
	if p.IngestInterval <= 0 {
		p.IngestInterval = defaults.IngestInterval
	}
	if p.SubmissionPollInterval <= 0 {
		p.SubmissionPollInterval = defaults.SubmissionPollInterval
	}
	return nil
}

func validateServiceConfig(name string, svc Service) error {
	if svc.RatePerSecond < 0 {
		return fmt.Errorf("service %q: rate_per_second cannot be negative", name)
	}
	if svc.Burst < 0 {
		return fmt.Errorf("service %q: burst cannot be negative", name)
	}
	if err := validateDuration(svc.Cooldown, "cooldown", 1*time.Hour); err != nil {
		return fmt.Errorf("service %q: %w", name, err)
	}
	return validateDuration(svc.CallTimeout, "call_timeout", 10*time.Minute)
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

// validateProxy checks if the given Proxy settings are valid.
func validateProxy(proxy *Proxy) error {
	if proxy == nil {
		return fmt.Errorf("proxy configuration is nil")
	}

	// If host or port is not set, skip further validation
	if proxy.Host == "" || proxy.Port == 0 {
		return nil
	}

	if !strings.Contains(proxy.Host, "://") {
		proxy.Host = "http://" + proxy.Host
	}
	proxy.Host = strings.TrimRight(proxy.Host, "/")

	if _, err := url.Parse(proxy.Host); err != nil {
		return fmt.Errorf("invalid host URL: %w", err)
	}

	if proxy.Port < 1 || proxy.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", proxy.Port)
	}

	return nil
}
