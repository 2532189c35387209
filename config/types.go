package config

// RateLimit bounds the request rate accepted per client address.
type RateLimit struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Enabled  bool              `toml:"Enabled"`
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers"`
	Metrics  bool              `toml:"Metrics"`
	Traces   bool              `toml:"Traces"`

	// SampleRatio in (0,1) samples root spans; zero samples every span.
	SampleRatio float64 `toml:"SampleRatio"`
}

// Auth configures bearer-token checks on operator endpoints. Tokens are
// HMAC-signed JWTs carrying the operator scope.
type Auth struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
	// ClockSkewSeconds is the leeway applied to exp/nbf/iat.
	ClockSkewSeconds int `toml:"ClockSkewSeconds"`
}

// Pauses lists modules whose mutating calls are rejected at start-up.
type Pauses struct {
	Pair bool `toml:"Pair"`
}

// Modules returns the names of paused modules.
func (p Pauses) Modules() []string {
	var out []string
	if p.Pair {
		out = append(out, "pair")
	}
	return out
}
