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
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// FromEnv takes a *Config as it will respect initial config that has been
// provided by other means (e.g. a config file) and will only extend those that
// are set
func FromEnv(config *Config) error {
	if v := os.Getenv("ROLLER_OUTPUT_PATH"); v != "" {
		config.OutputPath = v
	}

	if v := os.Getenv("ROLLER_KEY_PREFIX"); v != "" {
		config.KeyPrefix = v
	}

	if v := os.Getenv("ROLLER_SETUP_OUTPUT_PATH"); v != "" {
		config.SetupOutputPath = enabled(v)
	}

	if v := os.Getenv("ROLLER_JOURNAL_SYNC"); v != "" {
		config.JournalSync = enabled(v)
	}

	if err := parseInt("ROLLER_POOL_SIZE", func(val int) {
		config.PoolSize = val
	}); err != nil {
		return err
	}

	if err := parseInt("ROLLER_MAX_ATTEMPTS", func(val int) {
		config.Coalesce.MaxAttempts = val
	}); err != nil {
		return err
	}

	if v := os.Getenv("ROLLER_SUB_DIR_PATTERN"); v != "" {
		config.Coalesce.SubDirPattern = v
	}

	if v := os.Getenv("ROLLER_CHECK_OPEN_FILES"); v != "" {
		config.Coalesce.CheckOpenFiles = enabled(v)
	}

	if v := os.Getenv("ROLLER_OPEN_FILES_METHOD"); v != "" {
		config.Coalesce.OpenFilesMethod = v
	}

	if err := parseDuration("ROLLER_ROLL_INTERVAL", func(val time.Duration) {
		config.Roll.Interval = val
	}); err != nil {
		return err
	}

	if err := parseDuration("ROLLER_COALESCE_INTERVAL", func(val time.Duration) {
		config.Coalesce.Interval = val
	}); err != nil {
		return err
	}

	if err := parseDuration("ROLLER_SHUTDOWN_TIMEOUT", func(val time.Duration) {
		config.ShutdownTimeout = val
	}); err != nil {
		return err
	}

	if v := os.Getenv("PROMETHEUS_MONITORING_ENABLED"); v != "" {
		config.Monitoring.Enabled = enabled(v)
	}

	if err := parseInt("PROMETHEUS_MONITORING_PORT", func(val int) {
		config.Monitoring.Port = val
	}); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	return nil
}

func parseInt(envName string, cb func(val int)) error {
	v := os.Getenv(envName)
	if v == "" {
		return nil
	}

	asInt, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(err, "parse %s as int", envName)
	}
	cb(asInt)
	return nil
}

func parseDuration(envName string, cb func(val time.Duration)) error {
	v := os.Getenv(envName)
	if v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(err, "parse %s as duration", envName)
	}
	cb(d)
	return nil
}

func enabled(value string) bool {
	switch value {
	case "on", "enabled", "1", "true":
		return true
	default:
		return false
	}
}
