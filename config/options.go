// Package config resolves the layered adapter/client/user configuration of
// spec §4.11 and §6, and loads it from file/env with github.com/spf13/viper
// the same way the teacher's internal/config/config.go does — SetDefault,
// BindEnv, ReadInConfig — generalized from one flat struct into the
// three-tier precedence + deep-merge scheme the spec requires.
package config

import "time"

// TransportKind mirrors transport.Kind without importing the transport
// package, keeping config a true leaf dependency.
type TransportKind string

const (
	TCP TransportKind = "tcp"
	TLS TransportKind = "tls"
)

// BackoffType selects the shape of reconnection backoff (spec §6).
type BackoffType string

const (
	BackoffLinear      BackoffType = "linear"
	BackoffExponential BackoffType = "exponential"
	BackoffConstant    BackoffType = "constant"
)

// WSOpts mirrors spec §6's ws_opts.{compress, max_frame_size}.
type WSOpts struct {
	Compress     bool  `mapstructure:"compress" json:"compress"`
	MaxFrameSize int64 `mapstructure:"max_frame_size" json:"max_frame_size"`
}

// ReconnectOpts mirrors spec §6's reconnection keys.
type ReconnectOpts struct {
	MaxAttempts uint32        `mapstructure:"max_reconnect_attempts" json:"max_reconnect_attempts" validate:"gte=0"`
	BackoffType BackoffType   `mapstructure:"backoff_type" json:"backoff_type"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" json:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" json:"max_backoff"`
	Jitter      bool          `mapstructure:"jitter" json:"jitter"`
}

// RateLimitOpts mirrors spec §6's rate_limit_opts.{...}.
type RateLimitOpts struct {
	Mode           string           `mapstructure:"mode" json:"mode"`
	Capacity       int              `mapstructure:"capacity" json:"capacity" validate:"gte=0"`
	RefillRate     float64          `mapstructure:"refill_rate" json:"refill_rate" validate:"gte=0"`
	RefillInterval time.Duration    `mapstructure:"refill_interval" json:"refill_interval"`
	QueueLimit     int              `mapstructure:"queue_limit" json:"queue_limit" validate:"gte=0"`
	CostMap        map[string]int   `mapstructure:"cost_map" json:"cost_map"`
}

// Credentials mirrors spec §6's credentials.{api_key, secret, ...}. Per
// spec §4.11, credentials always replaces wholesale on merge, never
// deep-merges with a prior layer's credentials.
type Credentials map[string]string

// AuthOpts mirrors spec §6's auth_* keys.
type AuthOpts struct {
	Credentials         Credentials   `mapstructure:"credentials" json:"credentials"`
	RefreshThreshold    time.Duration `mapstructure:"auth_refresh_threshold" json:"auth_refresh_threshold"`
	AutoRefresh         bool          `mapstructure:"auth_auto_refresh" json:"auth_auto_refresh"`
	RetryAttempts       int           `mapstructure:"auth_retry_attempts" json:"auth_retry_attempts"`
}

// Options is the fully resolved configuration threaded through
// ConnectionState, handlers, and ClientConn. It is the Go shape of spec
// §3's ConfigOptions / spec §6's configuration-keys table.
type Options struct {
	Host      string            `mapstructure:"host" json:"host" validate:"required"`
	Port      uint16            `mapstructure:"port" json:"port" validate:"gte=1"`
	Path      string            `mapstructure:"path" json:"path"`
	Transport TransportKind     `mapstructure:"transport" json:"transport"`
	Protocols []string          `mapstructure:"protocols" json:"protocols"`
	Headers   map[string]string `mapstructure:"headers" json:"headers"`
	WS        WSOpts            `mapstructure:"ws_opts" json:"ws_opts"`

	Reconnect ReconnectOpts `mapstructure:"reconnect" json:"reconnect"`
	RateLimit RateLimitOpts `mapstructure:"rate_limit_opts" json:"rate_limit_opts"`
	Auth      AuthOpts      `mapstructure:"auth" json:"auth"`

	Timeout            time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
	PingInterval       time.Duration `mapstructure:"ping_interval" json:"ping_interval"`
	SubscriptionTimeout time.Duration `mapstructure:"subscription_timeout" json:"subscription_timeout"`

	LogLevel string `mapstructure:"log_level" json:"log_level"`

	// RateLimiterName names a rate limiter instance. It is carried through
	// merges but not read when connecting: every connection gets its own
	// private limiter, and limiters are not shared across connections.
	RateLimiterName string `mapstructure:"rate_limiter_name" json:"rate_limiter_name"`

	// Extra holds adapter-specific keys not named above (e.g. S5's
	// "custom": "x"), preserved verbatim through merges.
	Extra map[string]any `mapstructure:"-" json:"-"`
}

// Default returns the client-module baseline the teacher's config.Load
// seeds via v.SetDefault: conservative timeouts, at most ten reconnection
// attempts, exponential backoff with jitter.
func Default() Options {
	return Options{
		Transport: TCP,
		Path:      "/",
		WS:        WSOpts{Compress: false, MaxFrameSize: 1 << 20},
		Reconnect: ReconnectOpts{
			MaxAttempts: 10,
			BackoffType: BackoffExponential,
			BaseBackoff: 500 * time.Millisecond,
			MaxBackoff:  30 * time.Second,
			Jitter:      true,
		},
		RateLimit: RateLimitOpts{
			Mode:           "always_allow",
			Capacity:       60,
			RefillRate:     1,
			RefillInterval: time.Second,
			QueueLimit:     100,
			CostMap: map[string]int{
				"subscription": 1,
				"auth":         1,
				"query":        1,
				"order":        1,
				"cancel":       1,
				"default":      1,
			},
		},
		Timeout:      10 * time.Second,
		PingInterval: 30 * time.Second,
		LogLevel:     "info",
	}
}
