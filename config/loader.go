package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LoaderOptions parameterizes Load the way the teacher's config.Load hard-
// codes "CRAZYSTREAM"/"NVREMOTE": here the adapter picks its own env prefix
// and default file path instead of the core baking one in.
type LoaderOptions struct {
	ConfigPath string
	EnvPrefix  string
}

// Load reads a user config layer from file and environment, the same way
// the teacher's internal/config/config.go does: SetConfigFile,
// SetEnvPrefix/AutomaticEnv, ReadInConfig tolerating a missing file. The
// result is a generic map suitable as the strongest layer passed to
// MergeLayers/Resolve — it is deliberately NOT decoded into Options here,
// so callers can still merge it under adapter/client defaults first.
func Load(opts LoaderOptions) (map[string]any, error) {
	v := viper.New()

	if opts.ConfigPath != "" {
		v.SetConfigFile(opts.ConfigPath)
	}
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	return v.AllSettings(), nil
}

// Watcher live-reloads a user config layer via viper.WatchConfig, backed
// by fsnotify (already a transitive viper dependency in the teacher's own
// go.mod, promoted here to an exercised one). onChange is invoked with the
// freshly re-read settings map every time the file changes.
type Watcher struct {
	v *viper.Viper
}

// Watch starts watching configPath for changes and returns a Watcher.
// Returns an error if the file cannot be read at least once.
func Watch(configPath, envPrefix string, onChange func(map[string]any)) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		onChange(v.AllSettings())
	})
	v.WatchConfig()

	return &Watcher{v: v}, nil
}

// Settings returns the watcher's current snapshot.
func (w *Watcher) Settings() map[string]any { return w.v.AllSettings() }

var validate = validator.New()

// Validate checks struct tags on the resolved Options (host required, port
// in range, timeout positive, ...). client.Connect does not call it; callers
// run it on the resolved Options before dialing, as cmd/wsnova-echo does.
// This is the validator/v10 use SPEC_FULL §3 calls for — the teacher
// hand-rolled Config.Validate with a handful of `if x == ""` checks;
// here a real third-party validator replaces that by-hand style since the
// field set is much larger (rate limiting, auth, reconnection).
func Validate(o Options) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}
