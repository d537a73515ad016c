package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DeepMerge folds src onto dst per spec §4.11's precedence rules:
//   - nested maps deep-merge key by key
//   - slices (lists) replace wholesale, they never concatenate
//   - "credentials" always replaces wholesale, even though it is itself a
//     map, because partial-credential merges across layers would silently
//     mix stale and fresh secrets
//   - a nil value in src never overrides a present value in dst (the
//     caller may still explicitly pre-filter nils out of src; this just
//     means "key absent" and "key nil" behave the same way)
//
// dst is not mutated; a new map is returned.
func DeepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}

	for k, v := range src {
		if v == nil {
			continue
		}
		if k == "credentials" {
			out[k] = v
			continue
		}

		existing, ok := out[k]
		if !ok {
			out[k] = v
			continue
		}

		existingMap, existingIsMap := asMap(existing)
		newMap, newIsMap := asMap(v)
		if existingIsMap && newIsMap {
			out[k] = DeepMerge(existingMap, newMap)
			continue
		}

		out[k] = v
	}

	return out
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// MergeLayers folds layers left to right: layers[0] is the weakest
// (adapter defaults), the last is the strongest (user-supplied): adapter
// defaults ≺ client-module defaults ≺ user options. client.Connect does not
// call it; it takes Options that are already resolved.
func MergeLayers(layers ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, l := range layers {
		out = DeepMerge(out, l)
	}
	return out
}

// Resolve merges layers and decodes the result into an Options, preserving
// any keys that don't correspond to a known Options field in Extra (spec
// S5's "custom": "x").
func Resolve(layers ...map[string]any) (Options, error) {
	merged := MergeLayers(layers...)

	var opts Options
	known := map[string]bool{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Metadata: &mapstructure.Metadata{},
	})
	if err != nil {
		return Options{}, fmt.Errorf("building config decoder: %w", err)
	}
	if err := decoder.Decode(merged); err != nil {
		return Options{}, fmt.Errorf("decoding merged config: %w", err)
	}

	for _, tag := range optionsFieldTags() {
		known[tag] = true
	}

	extra := map[string]any{}
	for k, v := range merged {
		if !known[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		opts.Extra = extra
	}

	return opts, nil
}

// optionsFieldTags lists the mapstructure tags Options itself owns, so
// Resolve can tell a genuine unknown/adapter-specific key (destined for
// Extra) apart from one of Options's own fields.
func optionsFieldTags() []string {
	return []string{
		"host", "port", "path", "transport", "protocols", "headers", "ws_opts",
		"reconnect", "rate_limit_opts", "auth", "timeout", "ping_interval",
		"subscription_timeout", "log_level", "rate_limiter_name",
	}
}

// ToMap converts an Options back into the generic map representation, for
// callers that want to layer further overrides with MergeLayers. Durations
// are rendered as their string form so a later DeepMerge + Resolve round
// trip decodes cleanly.
func ToMap(o Options) map[string]any {
	m := map[string]any{
		"host":              o.Host,
		"port":              o.Port,
		"path":              o.Path,
		"transport":         string(o.Transport),
		"protocols":         o.Protocols,
		"headers":           o.Headers,
		"timeout":           o.Timeout.String(),
		"ping_interval":     o.PingInterval.String(),
		"log_level":         o.LogLevel,
		"rate_limiter_name": o.RateLimiterName,
		"ws_opts": map[string]any{
			"compress":       o.WS.Compress,
			"max_frame_size": o.WS.MaxFrameSize,
		},
		"reconnect": map[string]any{
			"max_reconnect_attempts": o.Reconnect.MaxAttempts,
			"backoff_type":           string(o.Reconnect.BackoffType),
			"base_backoff":           o.Reconnect.BaseBackoff.String(),
			"max_backoff":            o.Reconnect.MaxBackoff.String(),
			"jitter":                 o.Reconnect.Jitter,
		},
		"rate_limit_opts": map[string]any{
			"mode":            o.RateLimit.Mode,
			"capacity":        o.RateLimit.Capacity,
			"refill_rate":     o.RateLimit.RefillRate,
			"refill_interval": o.RateLimit.RefillInterval.String(),
			"queue_limit":     o.RateLimit.QueueLimit,
			"cost_map":        o.RateLimit.CostMap,
		},
	}
	if o.Auth.Credentials != nil || o.Auth.RetryAttempts != 0 || o.Auth.AutoRefresh {
		m["auth"] = map[string]any{
			"credentials":            o.Auth.Credentials,
			"auth_refresh_threshold": o.Auth.RefreshThreshold.String(),
			"auth_auto_refresh":      o.Auth.AutoRefresh,
			"auth_retry_attempts":    o.Auth.RetryAttempts,
		}
	}
	for k, v := range o.Extra {
		m[k] = v
	}
	return m
}
