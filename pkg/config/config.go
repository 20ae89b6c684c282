// Package config loads the pg-source and pg-sink process configs
// described in spec.md §6, the way the teacher's own config layer
// does: viper with a PGCDC_-prefixed environment override, a
// mapstructure-tagged struct, and an optional config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/streamkeep/pgcdc/internal/transform"
	"github.com/streamkeep/pgcdc/pkg/util/rand"
)

// Common holds the fields spec.md §6 lists under "common" in both the
// source and sink configs: the stream topic and an optional transform
// chain applied before DML translation.
type Common struct {
	Topic          string             `mapstructure:"topic"`
	Brokers        []string           `mapstructure:"brokers"`
	TransformChain []transform.Config `mapstructure:"transform_chain"`
}

// Source is pg-source's configuration: `{url, publication, slot,
// resume_timeout_ms, skip_setup, common}`.
type Source struct {
	URL             string   `mapstructure:"url"`
	Publication     string   `mapstructure:"publication"`
	Slot            string   `mapstructure:"slot"`
	// Tables to add to the publication when it is created (skip_setup
	// false). Patterns follow the teacher's own publication-table
	// syntax: "schema.table", "schema.*", or "*"/"*.*" for every table.
	// Empty means FOR ALL TABLES.
	Tables          []string `mapstructure:"tables"`
	ResumeTimeoutMs int      `mapstructure:"resume_timeout_ms"`
	SkipSetup       bool     `mapstructure:"skip_setup"`
	LogLevel        string   `mapstructure:"log_level"`
	Common          Common   `mapstructure:"common"`
}

// ResumeTimeout is ResumeTimeoutMs as a time.Duration, defaulting to 5s.
func (s Source) ResumeTimeout() time.Duration {
	if s.ResumeTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ResumeTimeoutMs) * time.Millisecond
}

// Sink is pg-sink's configuration: `{url, common}`.
type Sink struct {
	URL      string `mapstructure:"url"`
	LogLevel string `mapstructure:"log_level"`
	Common   Common `mapstructure:"common"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("publication", "pgcdc_pub")
	// A fresh, memorable default slot name per process, matching the
	// teacher's rand.NewName use for default resource names elsewhere.
	v.SetDefault("slot", "pgcdc_"+rand.NewName())
	v.SetDefault("resume_timeout_ms", 5000)
	v.SetDefault("skip_setup", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("common.topic", "pgcdc")
}

func newViper(cfgFile, envPrefix string) *viper.Viper {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(envPrefix)
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}
	v.AutomaticEnv()
	v.SetEnvPrefix("PGCDC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// url has no default, so Unmarshal only sees PGCDC_URL once bound.
	_ = v.BindEnv("url")
	defaults(v)
	return v
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: read config file: %w", err)
		}
	}
	return nil
}

// LoadSource reads pg-source's configuration from cfgFile if set,
// otherwise from the first of $HOME/.config/pgcdc-source.yaml and
// ./pgcdc-source.yaml found, with PGCDC_-prefixed environment
// variables taking precedence over the file.
func LoadSource(cfgFile string) (*Source, error) {
	v := newViper(cfgFile, "pgcdc-source")
	if err := readConfig(v); err != nil {
		return nil, err
	}
	var cfg Source
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode source config: %w", err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("config: url is required")
	}
	return &cfg, nil
}

// LoadSink reads pg-sink's configuration the same way LoadSource does.
func LoadSink(cfgFile string) (*Sink, error) {
	v := newViper(cfgFile, "pgcdc-sink")
	if err := readConfig(v); err != nil {
		return nil, err
	}
	var cfg Sink
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode sink config: %w", err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("config: url is required")
	}
	return &cfg, nil
}
