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


package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/roller/usecases/config"
)

type globalOptions struct {
	LogLevel  string `long:"log-level" description:"log level, overrides LOG_LEVEL and the config file"`
	LogFormat string `long:"log-format" choice:"text" choice:"json" description:"log format, overrides LOG_FORMAT and the config file"`
}

func main() {
	var global globalOptions
	parser := flags.NewParser(&global, flags.Default)
	registerCommands(parser, &global)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func registerCommands(parser *flags.Parser, global *globalOptions) {
	mustAdd := func(name, short, long string, data interface{}) {
		if _, err := parser.AddCommand(name, short, long, data); err != nil {
			panic(err)
		}
	}

	mustAdd("coalesce", "Merge rolled journal groups once",
		"Merges every journal group below the output directory into its final output and exits.",
		&coalesceCommand{global: global})
	mustAdd("serve", "Coalesce periodically and expose metrics",
		"Runs the coalescer on an interval until interrupted. Prometheus metrics are served on /metrics when monitoring is enabled.",
		&serveCommand{global: global})
	mustAdd("ingest", "Write stdin into journaled part files",
		"Writes every line read from stdin into a journaled part file, rolling and coalescing on the configured interval.",
		&ingestCommand{global: global})
	mustAdd("dump", "Print the content of journals",
		"Prints header and entries of every given journal file.",
		&dumpCommand{global: global})
}

func newLogger(logging config.Logging, global *globalOptions) (*logrus.Logger, error) {
	if global.LogLevel != "" {
		logging.Level = global.LogLevel
	}
	if global.LogFormat != "" {
		logging.Format = global.LogFormat
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(logging.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	logger.SetLevel(level)
	if logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}
