package config

import (
	"fmt"
	"strings"
)

var (
	MaxRequestsPerSecond = float64(10_000)
	MinHMACSecretLength  = 32
)

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.RequestsPerSecond > MaxRequestsPerSecond {
		return fmt.Errorf("rate_limit: RequestsPerSecond must be within [0, %.0f]", MaxRequestsPerSecond)
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when limiting is enabled")
	}
	if cfg.Telemetry.Enabled && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when enabled")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	if cfg.Auth.Enabled && len(strings.TrimSpace(cfg.Auth.HMACSecret)) < MinHMACSecretLength {
		return fmt.Errorf("auth: HMACSecret must be at least %d characters", MinHMACSecretLength)
	}
	if cfg.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("auth: ClockSkewSeconds must not be negative")
	}
	return nil
}
