//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//


package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/weaviate/roller/adapters/openfiles"
)

const (
	DefaultPoolSize         = 10
	DefaultMaxAttempts      = 3
	DefaultRollInterval     = 5 * time.Minute
	DefaultCoalesceInterval = 30 * time.Second
	DefaultOpenFilesMethod  = openfiles.MethodProc
	DefaultMonitoringPort   = 2112
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultKeyPrefix        = "journal"
)

// Config is the roller configuration as read from an optional YAML file and
// the environment.
type Config struct {
	OutputPath      string        `json:"output_path" yaml:"output_path"`
	SetupOutputPath bool          `json:"setup_output_path" yaml:"setup_output_path"`
	KeyPrefix       string        `json:"key_prefix" yaml:"key_prefix"`
	PoolSize        int           `json:"pool_size" yaml:"pool_size"`
	JournalSync     bool          `json:"journal_sync" yaml:"journal_sync"`
	Roll            Interval      `json:"roll" yaml:"roll"`
	Coalesce        CoalesceOpts  `json:"coalesce" yaml:"coalesce"`
	Monitoring      Monitoring    `json:"monitoring" yaml:"monitoring"`
	Logging         Logging       `json:"logging" yaml:"logging"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type Interval struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

type CoalesceOpts struct {
	Interval        time.Duration `json:"interval" yaml:"interval"`
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
	SubDirPattern   string        `json:"sub_dir_pattern" yaml:"sub_dir_pattern"`
	CheckOpenFiles  bool          `json:"check_open_files" yaml:"check_open_files"`
	OpenFilesMethod string        `json:"open_files_method" yaml:"open_files_method"`
}

type Monitoring struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Defaults returns a config with every optional setting filled in.
func Defaults() Config {
	return Config{
		KeyPrefix: DefaultKeyPrefix,
		PoolSize:  DefaultPoolSize,
		Roll:      Interval{Interval: DefaultRollInterval},
		Coalesce: CoalesceOpts{
			Interval:        DefaultCoalesceInterval,
			MaxAttempts:     DefaultMaxAttempts,
			OpenFilesMethod: DefaultOpenFilesMethod,
		},
		Monitoring:      Monitoring{Port: DefaultMonitoringPort},
		Logging:         Logging{Level: DefaultLogLevel, Format: DefaultLogFormat},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load builds the config from the defaults, the YAML file at path if path is
// not empty and finally the environment. Callers apply their own overrides,
// e.g. command line flags, and call Validate afterwards.
func Load(path string, logger logrus.FieldLogger) (Config, error) {
	cfg := Defaults()

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config file %q", path)
		}
		if err := yaml.UnmarshalStrict(file, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "unmarshal config file %q", path)
		}
		logger.WithField("action", "config_load").
			WithField("config_file_path", path).
			Debug("loaded config file")
	}

	if err := FromEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.OutputPath == "" {
		return configErr(errors.New("output path must be set"))
	}
	if c.KeyPrefix == "" {
		return configErr(errors.New("key prefix must not be empty"))
	}
	if c.PoolSize < 1 {
		return configErr(errors.Errorf("pool size must be at least 1, got %d", c.PoolSize))
	}
	if c.Roll.Interval <= 0 {
		return configErr(errors.Errorf("roll interval must be positive, got %s", c.Roll.Interval))
	}
	if err := c.Coalesce.validate(); err != nil {
		return configErr(err)
	}
	if c.Monitoring.Enabled && (c.Monitoring.Port < 1 || c.Monitoring.Port > 65535) {
		return configErr(errors.Errorf("invalid monitoring port %d", c.Monitoring.Port))
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return configErr(err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return configErr(errors.Errorf("unsupported log format %q, use text or json", c.Logging.Format))
	}
	return nil
}

func (c CoalesceOpts) validate() error {
	if c.Interval <= 0 {
		return errors.Errorf("coalesce interval must be positive, got %s", c.Interval)
	}
	if c.MaxAttempts < 1 {
		return errors.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.SubDirPattern != "" && !strings.HasPrefix(c.SubDirPattern, "/") {
		return errors.Errorf("sub directory pattern %q must be empty or start with /", c.SubDirPattern)
	}
	switch c.OpenFilesMethod {
	case openfiles.MethodProc, openfiles.MethodLsof:
	default:
		return errors.Errorf("unsupported open files method %q", c.OpenFilesMethod)
	}
	return nil
}

func configErr(err error) error {
	return errors.Wrap(err, "invalid config")
}
