package pagecache

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Settings is the file and environment form of Config.
type Settings struct {
	Defaults `yaml:",inline"`
	Rules    Rules `yaml:"rules"`
}

// Defaults can be set in the config file and overridden from the environment.
type Defaults struct {
	TTL            Duration `yaml:"ttl" env:"PAGECACHE_TTL"`
	Stale          Duration `yaml:"stale" env:"PAGECACHE_STALE"`
	RefreshTimeout Duration `yaml:"refreshTimeout" env:"PAGECACHE_REFRESH_TIMEOUT"`
	MaxBodyBytes   int      `yaml:"maxBodyBytes" env:"PAGECACHE_MAX_BODY_BYTES"`
	AdminPrefix    string   `yaml:"adminPrefix" env:"PAGECACHE_ADMIN_PREFIX"`
	SessionCookie  string   `yaml:"sessionCookie" env:"PAGECACHE_SESSION_COOKIE"`
}

// Duration is a time.Duration that reads either a Go duration ("90s")
// or a bare number of milliseconds ("90000").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return Duration(d), nil
}

// LoadSettings reads the YAML config file, if any, and applies environment overrides.
func LoadSettings(filename string) (Settings, error) {
	var settings Settings
	if filename != "" {
		configBytes, err := os.ReadFile(filename)
		if err != nil {
			return settings, err
		}
		if err := yaml.Unmarshal(configBytes, &settings); err != nil {
			return settings, fmt.Errorf("parse %s: %w", filename, err)
		}
	}
	err := env.ParseWithOptions(&settings.Defaults, env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(Duration(0)): func(v string) (interface{}, error) {
				return parseDuration(v)
			},
		},
	})
	if err != nil {
		return settings, fmt.Errorf("read environment: %w", err)
	}
	return settings, nil
}

// Apply copies the settings that are set onto cfg.
func (s Settings) Apply(cfg *Config) {
	if s.TTL > 0 {
		cfg.TTL = time.Duration(s.TTL)
	}
	if s.Stale > 0 {
		cfg.Stale = time.Duration(s.Stale)
	}
	if s.RefreshTimeout > 0 {
		cfg.RefreshTimeout = time.Duration(s.RefreshTimeout)
	}
	if s.MaxBodyBytes != 0 {
		cfg.MaxBodyBytes = s.MaxBodyBytes
	}
	if s.AdminPrefix != "" {
		cfg.AdminPrefix = s.AdminPrefix
	}
	if s.SessionCookie != "" {
		cfg.SessionCookie = s.SessionCookie
	}
	if len(s.Rules) > 0 {
		cfg.Rules = append(cfg.Rules, s.Rules...)
	}
}
