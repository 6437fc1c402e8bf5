// Package config loads the service configuration with viper. The result is
// an immutable value that constructors receive explicitly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/viper"
)

// Public key coordinates of the authorized in-chip signer, as emitted at
// public input indices 8 and 9.
const (
	DefaultSignerPubKeyX = "0x1b073e4eede939876ce1deb7491d5d3bf212ba6b574c1c4658b0d72c467af4fb"
	DefaultSignerPubKeyY = "0x503c38a246469b877b3a9096de70bad25bd41ae302bc9c5dd208b2046ef6e2a"
)

type Config struct {
	Server  ServerConfig
	Log     LogConfig
	LevelDB LevelDBConfig
	Prover  ProverConfig
	Poller  PollerConfig
	Signer  SignerConfig
	Auth    AuthConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	AppLogFile string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	Stdout     bool
}

type LevelDBConfig struct {
	Path string
}

type ProverConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	Breaker     BreakerConfig
}

type BreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

type PollerConfig struct {
	Enabled     bool
	Interval    time.Duration
	Concurrency int
}

// SignerConfig holds the signer key in canonical decimal form
type SignerConfig struct {
	PubKeyX string
	PubKeyY string
}

type AuthConfig struct {
	Users []AuthUser
}

// AuthUser binds a static auth token to a username
type AuthUser struct {
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("log.app_log_file", "logs/app.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.stdout", false)
	v.SetDefault("leveldb.path", "data/leaderboard")
	v.SetDefault("prover.base_url", "https://csn-devcon.taceo.io")
	v.SetDefault("prover.access_token", "")
	v.SetDefault("prover.timeout", "10s")
	v.SetDefault("prover.breaker.max_failures", 5)
	v.SetDefault("prover.breaker.reset_timeout", "30s")
	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", "30s")
	v.SetDefault("poller.concurrency", 16)
	v.SetDefault("signer.pubkey_x", DefaultSignerPubKeyX)
	v.SetDefault("signer.pubkey_y", DefaultSignerPubKeyY)
}

// Load reads the YAML file at path (skipped when path is empty), applies
// LEADERBOARD_* environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LEADERBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	x, err := NormalizeFieldElement(v.GetString("signer.pubkey_x"))
	if err != nil {
		return nil, fmt.Errorf("signer.pubkey_x: %w", err)
	}
	y, err := NormalizeFieldElement(v.GetString("signer.pubkey_y"))
	if err != nil {
		return nil, fmt.Errorf("signer.pubkey_y: %w", err)
	}

	// a list, not a map: viper lowercases map keys and tokens are case sensitive
	var users []AuthUser
	if err := v.UnmarshalKey("auth.users", &users); err != nil {
		return nil, fmt.Errorf("auth.users: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Log: LogConfig{
			AppLogFile: v.GetString("log.app_log_file"),
			Level:      v.GetString("log.level"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			Stdout:     v.GetBool("log.stdout"),
		},
		LevelDB: LevelDBConfig{Path: v.GetString("leveldb.path")},
		Prover: ProverConfig{
			BaseURL:     strings.TrimRight(v.GetString("prover.base_url"), "/"),
			AccessToken: v.GetString("prover.access_token"),
			Timeout:     v.GetDuration("prover.timeout"),
			Breaker: BreakerConfig{
				MaxFailures:  v.GetInt("prover.breaker.max_failures"),
				ResetTimeout: v.GetDuration("prover.breaker.reset_timeout"),
			},
		},
		Poller: PollerConfig{
			Enabled:     v.GetBool("poller.enabled"),
			Interval:    v.GetDuration("poller.interval"),
			Concurrency: v.GetInt("poller.concurrency"),
		},
		Signer: SignerConfig{PubKeyX: x, PubKeyY: y},
		Auth:   AuthConfig{Users: users},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	case c.Prover.BaseURL == "":
		return fmt.Errorf("prover.base_url is required")
	case c.Prover.Timeout <= 0:
		return fmt.Errorf("prover.timeout must be positive")
	case c.Prover.Breaker.MaxFailures <= 0:
		return fmt.Errorf("prover.breaker.max_failures must be positive")
	case c.Poller.Interval <= 0:
		return fmt.Errorf("poller.interval must be positive")
	case c.Poller.Concurrency <= 0:
		return fmt.Errorf("poller.concurrency must be positive")
	}
	for i, u := range c.Auth.Users {
		if u.Token == "" || u.Username == "" {
			return fmt.Errorf("auth.users[%d]: token and username are required", i)
		}
	}
	return nil
}

// NormalizeFieldElement parses a 256-bit integer given in hex (0x-prefixed)
// or decimal and returns its decimal form.
func NormalizeFieldElement(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty value")
	}
	var (
		n   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			digits = "0"
		}
		n, err = uint256.FromHex("0x" + digits)
	} else {
		n, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", s, err)
	}
	return n.Dec(), nil
}
