// Package config loads personmod settings with viper.
//
// Precedence, lowest to highest: defaults, the TOML config file,
// PERSONMOD_* environment variables, command-line flags.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment variable, e.g. PERSONMOD_DATABASE_PATH.
const EnvPrefix = "PERSONMOD"

// DefaultFile is read from the working directory when no file is named.
const DefaultFile = "personmod.toml"

type Config struct {
	Database Database `mapstructure:"database"`
	Log      Log      `mapstructure:"log"`
}

type Database struct {
	// Path is the SQLite file. ":memory:" keeps state for one process only.
	Path string `mapstructure:"path"`

	// MaxRows caps each table; 0 means unlimited.
	MaxRows int64 `mapstructure:"max_rows"`
}

type Log struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "personmod.db")
	v.SetDefault("database.max_rows", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// flagKeys maps flag names to the keys they override.
var flagKeys = map[string]string{
	"db":       "database.path",
	"max-rows": "database.max_rows",
	"log-json": "log.json",
}

// Load reads configuration. An explicitly named file must exist; the default
// file is optional. flags may be nil; only flags the user set override.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := readFile(v, path); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind flag --%s", name)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	return nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	if c.Database.MaxRows < 0 {
		return errors.Newf("database.max_rows must be >= 0, got %d", c.Database.MaxRows)
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	return nil
}

// ZapLevel parses Level.
func (l Log) ZapLevel() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return zapcore.InfoLevel, errors.Wrapf(err, "log.level")
	}
	return lvl, nil
}
