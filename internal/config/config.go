// Package config wires viper to the CLI: config file, DITATRACK_* env vars
// and persistent flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ditatrack/internal/dirs"
	"ditatrack/internal/events"
	"ditatrack/internal/progress"
)

const EnvPrefix = "DITATRACK"

// Settings is the validated runtime configuration.
type Settings struct {
	Server        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsChannel string
	PollInterval  time.Duration
	Timeout       time.Duration
	RateLimit     float64
	OutDir        string
	Verbose       bool
	Breakpoints   progress.Breakpoints
	// ConfigFile is the file that was read, if any.
	ConfigFile string
}

// flagKeys maps persistent flag names to viper keys.
var flagKeys = map[string]string{
	"server":         "server",
	"redis-addr":     "redis_addr",
	"events-channel": "events_channel",
	"poll-interval":  "poll_interval",
	"timeout":        "timeout",
	"out-dir":        "out_dir",
	"verbose":        "verbose",
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:5000")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("events_channel", events.DefaultChannel)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("rate_limit", 5.0)
	v.SetDefault("out_dir", "")
	v.SetDefault("verbose", false)
	v.SetDefault("breakpoints", []int{})
}

// Init wires the global viper with config paths, env, defaults and flag
// bindings. A missing config file is not an error; a malformed one is.
func Init(root *cobra.Command) error {
	_ = dirs.EnsureAll()

	v := viper.GetViper()
	if cfgDir, err := dirs.ConfigDir(); err == nil {
		v.AddConfigPath(cfgDir)
	}
	v.SetConfigName("config") // config.{yaml|yml|json|toml}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	for name, key := range flagKeys {
		if f := root.PersistentFlags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Load reads Settings from the global viper.
func Load() (Settings, error) {
	return FromViper(viper.GetViper())
}

// FromViper reads and validates Settings from v.
func FromViper(v *viper.Viper) (Settings, error) {
	s := Settings{
		Server:        strings.TrimSuffix(strings.TrimSpace(v.GetString("server")), "/"),
		RedisAddr:     strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		EventsChannel: strings.TrimSpace(v.GetString("events_channel")),
		PollInterval:  v.GetDuration("poll_interval"),
		Timeout:       v.GetDuration("timeout"),
		RateLimit:     v.GetFloat64("rate_limit"),
		OutDir:        strings.TrimSpace(v.GetString("out_dir")),
		Verbose:       v.GetBool("verbose"),
		ConfigFile:    v.ConfigFileUsed(),
	}

	u, err := url.Parse(s.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Settings{}, fmt.Errorf("server: %q is not an http(s) URL", s.Server)
	}
	if s.PollInterval <= 0 {
		return Settings{}, fmt.Errorf("poll_interval: must be positive, got %s", s.PollInterval)
	}
	if s.Timeout <= 0 {
		return Settings{}, fmt.Errorf("timeout: must be positive, got %s", s.Timeout)
	}
	if s.RateLimit <= 0 {
		return Settings{}, fmt.Errorf("rate_limit: must be positive, got %g", s.RateLimit)
	}
	if s.EventsChannel == "" {
		s.EventsChannel = events.DefaultChannel
	}
	if s.OutDir == "" {
		if d, err := dirs.DefaultOutputDir(); err == nil {
			s.OutDir = d
		} else {
			s.OutDir = "."
		}
	}

	marks := v.GetIntSlice("breakpoints")
	if len(marks) == 0 {
		// DITATRACK_BREAKPOINTS arrives as "20,40,70,90,100".
		if raw := strings.TrimSpace(v.GetString("breakpoints")); raw != "" {
			parsed, err := parseIntList(raw)
			if err != nil {
				return Settings{}, fmt.Errorf("breakpoints: %w", err)
			}
			marks = parsed
		}
	}
	if len(marks) > 0 {
		bp, err := progress.ParseBreakpoints(marks)
		if err != nil {
			return Settings{}, fmt.Errorf("breakpoints: %w", err)
		}
		s.Breakpoints = bp
	} else {
		s.Breakpoints = progress.DefaultBreakpoints
	}
	return s, nil
}

func parseIntList(raw string) ([]int, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", f)
		}
		out = append(out, n)
	}
	return out, nil
}

// PushEnabled reports whether a push channel is configured.
func (s Settings) PushEnabled() bool { return s.RedisAddr != "" }

// RedisConfig adapts s for events.Open.
func (s Settings) RedisConfig() events.RedisConfig {
	return events.RedisConfig{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
		Channel:  s.EventsChannel,
	}
}
