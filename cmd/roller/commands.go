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
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/roller/adapters/openfiles"
	"github.com/weaviate/roller/adapters/repos/roller/coalesce"
	"github.com/weaviate/roller/adapters/repos/roller/journal"
	enterrors "github.com/weaviate/roller/entities/errors"
	"github.com/weaviate/roller/usecases/config"
	"github.com/weaviate/roller/usecases/monitoring"
	"github.com/weaviate/roller/usecases/roller"
)

// sourceOptions are shared by every command working on an output directory.
// Unset flags keep the value from the config file or the environment.
type sourceOptions struct {
	Config          string `short:"c" long:"config" description:"YAML config file"`
	Output          string `short:"o" long:"output" description:"directory holding part files and journals"`
	SetupOutputPath bool   `long:"setup-output-path" description:"create the output directory if it does not exist"`
	SubDir          string `long:"sub-dir" description:"doublestar pattern of sub directories to coalesce, e.g. /* or /**"`
	MaxAttempts     int    `long:"max-attempts" description:"merge attempts per key before its files are quarantined"`
	CheckOpenFiles  bool   `long:"check-open-files" description:"skip groups with journals still held open by some process"`
	OpenFilesMethod string `long:"open-files-method" choice:"proc" choice:"lsof" description:"how open files are detected"`
}

func (o sourceOptions) load(global *globalOptions) (config.Config, *logrus.Logger, error) {
	bootstrap := logrus.New()
	cfg, err := config.Load(o.Config, bootstrap)
	if err != nil {
		return cfg, nil, err
	}

	if o.Output != "" {
		cfg.OutputPath = o.Output
	}
	if o.SetupOutputPath {
		cfg.SetupOutputPath = true
	}
	if o.SubDir != "" {
		cfg.Coalesce.SubDirPattern = o.SubDir
	}
	if o.MaxAttempts != 0 {
		cfg.Coalesce.MaxAttempts = o.MaxAttempts
	}
	if o.CheckOpenFiles {
		cfg.Coalesce.CheckOpenFiles = true
	}
	if o.OpenFilesMethod != "" {
		cfg.Coalesce.OpenFilesMethod = o.OpenFilesMethod
	}

	logger, err := newLogger(cfg.Logging, global)
	if err != nil {
		return cfg, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// newCoalescer picks the coalescer variant matching cfg.
func newCoalescer(cfg config.Config, logger logrus.FieldLogger,
	metrics *monitoring.PrometheusMetrics,
) (*coalesce.Coalescer, error) {
	opts := []coalesce.Option{
		coalesce.WithSetupOutputPath(cfg.SetupOutputPath),
		coalesce.WithMetrics(metrics),
	}
	c := cfg.Coalesce

	if c.CheckOpenFiles {
		checker, err := openfiles.New(c.OpenFilesMethod, logger)
		if err != nil {
			return nil, err
		}
		return coalesce.NewLsof(cfg.OutputPath, c.SubDirPattern, c.MaxAttempts, checker, logger, opts...)
	}
	if c.SubDirPattern != "" {
		return coalesce.NewWalkDirectory(cfg.OutputPath, c.SubDirPattern, c.MaxAttempts, logger, opts...)
	}
	return coalesce.NewMaxAttempt(cfg.OutputPath, c.MaxAttempts, logger, opts...)
}

type coalesceCommand struct {
	global *globalOptions

	Source sourceOptions `group:"Source Options"`
}

func (cmd *coalesceCommand) Execute(args []string) error {
	cfg, logger, err := cmd.Source.load(cmd.global)
	if err != nil {
		return err
	}

	c, err := newCoalescer(cfg, logger, nil)
	if err != nil {
		return err
	}
	return c.Coalesce()
}

type serveCommand struct {
	global *globalOptions

	Source  sourceOptions `group:"Source Options"`
	Metrics bool          `long:"metrics" description:"serve prometheus metrics, overrides PROMETHEUS_MONITORING_ENABLED"`
	Port    int           `long:"metrics-port" description:"port of the metrics endpoint"`
}

func (cmd *serveCommand) Execute(args []string) error {
	cfg, logger, err := cmd.Source.load(cmd.global)
	if err != nil {
		return err
	}
	if cmd.Metrics {
		cfg.Monitoring.Enabled = true
	}
	if cmd.Port != 0 {
		cfg.Monitoring.Port = cmd.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, server, err := startMonitoring(cfg.Monitoring, logger)
	if err != nil {
		return err
	}

	c, err := newCoalescer(cfg, logger, metrics)
	if err != nil {
		return err
	}
	svc := roller.NewService(logger, roller.WithCoalesce(c, cfg.Coalesce.Interval))

	eg, ctx := enterrors.NewErrorGroupWithContext(ctx, logger)
	if server != nil {
		eg.Go(server.serve)
	}
	eg.Go(func() error {
		err := runService(ctx, c, svc, logger)
		if shutdownErr := server.shutdown(cfg.ShutdownTimeout); err == nil {
			err = shutdownErr
		}
		return err
	})

	return eg.Wait()
}

// runService coalesces once right away and then on every tick of svc until
// ctx is done.
func runService(ctx context.Context, c *coalesce.Coalescer, svc *roller.Service,
	logger logrus.FieldLogger,
) error {
	if err := c.Coalesce(); err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	logger.WithField("action", "roller_serve").
		WithField("dir", c.OutputDir()).
		Info("coalescing periodically")

	<-ctx.Done()
	svc.Stop()
	return nil
}

type ingestCommand struct {
	global *globalOptions

	Source       sourceOptions `group:"Source Options"`
	KeyPrefix    string        `long:"key-prefix" description:"prefix of the generated journal keys"`
	PoolSize     int           `long:"pool-size" description:"maximum number of part files per pool"`
	RollInterval time.Duration `long:"roll-interval" description:"time between rolls, e.g. 5m"`
}

func (cmd *ingestCommand) Execute(args []string) error {
	cfg, logger, err := cmd.Source.load(cmd.global)
	if err != nil {
		return err
	}
	if cmd.KeyPrefix != "" {
		cfg.KeyPrefix = cmd.KeyPrefix
	}
	if cmd.PoolSize != 0 {
		cfg.PoolSize = cmd.PoolSize
	}
	if cmd.RollInterval != 0 {
		cfg.Roll.Interval = cmd.RollInterval
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return ingest(ctx, cfg, os.Stdin, logger)
}

// ingest writes every line of in as one committed unit until in is
// exhausted or ctx is done, then rolls a last time.
func ingest(ctx context.Context, cfg config.Config, in io.Reader, logger logrus.FieldLogger) error {
	jc, err := roller.NewJournaledCoalescer(cfg.OutputPath,
		roller.NewTimestampGenerator(cfg.KeyPrefix), cfg.PoolSize, logger,
		roller.WithMaxAttempts(cfg.Coalesce.MaxAttempts),
		roller.WithWriterOptions(journal.WithSync(cfg.JournalSync)))
	if err != nil {
		return err
	}

	svc := roller.NewService(logger, roller.WithRoll(jc, cfg.Roll.Interval))
	if err := svc.Start(ctx); err != nil {
		return err
	}

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	enterrors.GoWrapper(func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, journal.BufferSize), 16*journal.BufferSize)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes())+1)
			copy(line, scanner.Bytes())
			line[len(line)-1] = '\n'
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}, logger)

	var writeErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if writeErr = writeLine(jc, line); writeErr != nil {
				break loop
			}
		}
	}

	svc.Stop()
	closeErr := jc.Close()

	switch {
	case writeErr != nil:
		return writeErr
	case closeErr != nil:
		return closeErr
	}
	select {
	case err := <-scanErr:
		return errors.Wrap(err, "read input")
	default:
		return nil
	}
}

func writeLine(jc *roller.JournaledCoalescer, line []byte) error {
	o, err := jc.GetOutput()
	if err != nil {
		return err
	}
	defer o.Close()

	if _, err := o.Write(line); err != nil {
		return err
	}
	return o.Commit()
}

type dumpCommand struct {
	global *globalOptions

	Args struct {
		Journals []string `positional-arg-name:"journal" required:"1"`
	} `positional-args:"yes"`
}

func (cmd *dumpCommand) Execute(args []string) error {
	logger, err := newLogger(config.Defaults().Logging, cmd.global)
	if err != nil {
		return err
	}

	for _, path := range cmd.Args.Journals {
		if err := journal.Dump(os.Stdout, path, logger); err != nil {
			return err
		}
	}
	return nil
}

// metricsServer serves /metrics on a listener counting its connections.
type metricsServer struct {
	http     *http.Server
	listener net.Listener
}

// startMonitoring registers the roller metrics. With monitoring disabled the
// metrics go to a no-op registry and no server is returned.
func startMonitoring(cfg config.Monitoring, logger logrus.FieldLogger,
) (*monitoring.PrometheusMetrics, *metricsServer, error) {
	if !cfg.Enabled {
		return monitoring.NewPrometheusMetrics(nil), nil, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewPrometheusMetrics(reg)

	l, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Port))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "listen on metrics port %d", cfg.Port)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	logger.WithField("action", "roller_metrics").
		WithField("port", cfg.Port).
		Info("serving metrics")
	return metrics, &metricsServer{
		http:     &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		listener: metrics.CountingListener(l),
	}, nil
}

func (s *metricsServer) serve() error {
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve metrics")
	}
	return nil
}

func (s *metricsServer) shutdown(timeout time.Duration) error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
