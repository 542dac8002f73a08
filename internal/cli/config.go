package cli

import (
	"fmt"
	"slices"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"
)

// Config is the CLI configuration as collected from one source. Null fields
// distinguish "not set" from zero values so sources can be layered.
type Config struct {
	Format       null.String `json:"format" envconfig:"NOPIA_FORMAT"`
	Store        null.String `json:"store" envconfig:"NOPIA_STORE"`
	Workers      null.Int    `json:"workers" envconfig:"NOPIA_WORKERS"`
	MetadataOnly null.Bool   `json:"metadataOnly" envconfig:"NOPIA_METADATA_ONLY"`
}

// NewConfig returns the defaults. Workers 0 leaves the pipeline default.
func NewConfig() Config {
	return Config{
		Format:       null.NewString("text", false),
		Store:        null.NewString("nopia.db", false),
		Workers:      null.NewInt(0, false),
		MetadataOnly: null.NewBool(false, false),
	}
}

// Apply overlays the set values of cfg onto c.
func (c Config) Apply(cfg Config) Config {
	if cfg.Format.Valid && cfg.Format.String != "" {
		c.Format = cfg.Format
	}
	if cfg.Store.Valid && cfg.Store.String != "" {
		c.Store = cfg.Store
	}
	if cfg.Workers.Valid {
		c.Workers = cfg.Workers
	}
	if cfg.MetadataOnly.Valid {
		c.MetadataOnly = cfg.MetadataOnly
	}
	return c
}

// configFromFlags reads the flags the user set explicitly.
func configFromFlags(flags *pflag.FlagSet) Config {
	return Config{
		Format:       getNullString(flags, "format"),
		Store:        getNullString(flags, "store"),
		Workers:      getNullInt(flags, "workers"),
		MetadataOnly: getNullBool(flags, "metadata-only"),
	}
}

// consolidateConfig layers defaults, environment and explicitly set flags,
// in increasing order of precedence.
func consolidateConfig(flags *pflag.FlagSet, lookupEnv func(string) (string, bool)) (Config, error) {
	envConf := Config{}
	if err := envconfig.Process("", &envConf, lookupEnv); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	conf := NewConfig().Apply(envConf).Apply(configFromFlags(flags))

	if !slices.Contains(ValidFormats, conf.Format.String) {
		return Config{}, fmt.Errorf("invalid format %q: must be one of %v", conf.Format.String, ValidFormats)
	}
	if conf.Workers.Int64 < 0 {
		return Config{}, fmt.Errorf("invalid workers %d: must not be negative", conf.Workers.Int64)
	}
	return conf, nil
}

func getNullString(flags *pflag.FlagSet, key string) null.String {
	v, err := flags.GetString(key)
	if err != nil {
		return null.String{}
	}
	return null.NewString(v, flags.Changed(key))
}

func getNullInt(flags *pflag.FlagSet, key string) null.Int {
	v, err := flags.GetInt(key)
	if err != nil {
		return null.Int{}
	}
	return null.NewInt(int64(v), flags.Changed(key))
}

func getNullBool(flags *pflag.FlagSet, key string) null.Bool {
	v, err := flags.GetBool(key)
	if err != nil {
		return null.Bool{}
	}
	return null.NewBool(v, flags.Changed(key))
}
