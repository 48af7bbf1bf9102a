/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	rsp "github.com/numaproj/numaflow-rsp"
	"github.com/numaproj/numaflow-rsp/pkg/config"
	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/metrics"
	"github.com/numaproj/numaflow-rsp/pkg/rdf"
	natsclient "github.com/numaproj/numaflow-rsp/pkg/shared/clients/nats"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/sinks"
	"github.com/numaproj/numaflow-rsp/pkg/sinks/blackhole"
	sinklogger "github.com/numaproj/numaflow-rsp/pkg/sinks/logger"
	natssink "github.com/numaproj/numaflow-rsp/pkg/sinks/nats"
	"github.com/numaproj/numaflow-rsp/pkg/sinks/writer"
	"github.com/numaproj/numaflow-rsp/pkg/sources"
	httpsource "github.com/numaproj/numaflow-rsp/pkg/sources/http"
	"github.com/numaproj/numaflow-rsp/pkg/sources/jsonl"
	natssource "github.com/numaproj/numaflow-rsp/pkg/sources/nats"
)

// flags maps every flag to its configuration key.
var flags = []struct {
	name  string
	key   string
	usage string
}{
	{name: "query", key: "query", usage: "Continuous query text"},
	{name: "query-file", key: "queryFile", usage: "File containing the continuous query"},
	{name: "static-data", key: "staticData", usage: "N-Quads file of background knowledge"},
	{name: "report-policy", key: "engine.reportPolicy", usage: "Report policy of every window: OnWindowClose, NonEmptyContent, OnContentChange or Periodic"},
	{name: "tick", key: "engine.tick", usage: "Tick of every window: TimeDriven, TupleDriven or BatchDriven"},
	{name: "drain-timeout", key: "engine.drainTimeout", usage: "How long pending batches are flushed for on shutdown"},
	{name: "source", key: "source.kind", usage: "Source of events: jsonl, nats or http"},
	{name: "source-file", key: "source.file", usage: "JSON lines file read by the jsonl source, - is stdin"},
	{name: "skip-invalid", key: "source.skipInvalid", usage: "Skip invalid events of the jsonl source instead of stopping"},
	{name: "source-nats-url", key: "source.nats.url", usage: "NATS server of the nats source"},
	{name: "source-nats-subject", key: "source.nats.subject", usage: "Subject of the nats source"},
	{name: "source-nats-queue", key: "source.nats.queue", usage: "Queue group of the nats source"},
	{name: "http-addr", key: "source.http.addr", usage: "Listen address of the http source"},
	{name: "sinks", key: "sink.kinds", usage: "Sinks of the results: log, stdout, file, nats or blackhole"},
	{name: "sink-file", key: "sink.file", usage: "File written by the file sink"},
	{name: "sink-nats-url", key: "sink.nats.url", usage: "NATS server of the nats sink"},
	{name: "sink-nats-subject", key: "sink.nats.subject", usage: "Subject of the nats sink"},
	{name: "metrics-addr", key: "metrics.addr", usage: "Listen address of the metrics server"},
	{name: "disable-metrics", key: "metrics.disabled", usage: "Do not start the metrics server"},
}

func NewRunCommand() *cobra.Command {
	var configFile string
	v := viper.New()
	config.SetDefaults(v)

	command := &cobra.Command{
		Use:   "run",
		Short: "Run a continuous query over event streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			log := logging.NewLogger().Named("run")
			log.Infow("Starting continuous query engine", "version", rsp.GetVersion())
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(logging.WithLogger(ctx, log), c, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	command.Flags().StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	for _, f := range flags {
		switch d := v.Get(f.key).(type) {
		case bool:
			command.Flags().Bool(f.name, d, f.usage)
		case []string:
			command.Flags().StringSlice(f.name, d, f.usage)
		default:
			command.Flags().String(f.name, v.GetString(f.key), f.usage)
		}
		_ = v.BindPFlag(f.key, command.Flags().Lookup(f.name))
	}
	return command
}

// Run executes the configured query until the source ends or ctx is done, then flushes every result.
func Run(ctx context.Context, c *config.Config, stdin io.Reader, stdout io.Writer) error {
	log := logging.FromContext(ctx)
	version := rsp.GetVersion()
	metrics.BuildInfo.WithLabelValues(CLIName, version.Version, version.Platform).Set(1)

	query, err := c.ReadQuery()
	if err != nil {
		return err
	}
	e, err := engine.New(query,
		engine.WithLogger(log),
		engine.WithInputBufferSize(c.Engine.InputBufferSize),
		engine.WithResultBufferSize(c.Engine.ResultBufferSize),
		engine.WithErrorBufferSize(c.Engine.ErrorBufferSize),
		engine.WithReportPolicy(c.ReportPolicy()),
		engine.WithTick(c.Tick()))
	if err != nil {
		return err
	}
	if c.StaticData != "" {
		if err := loadStaticData(e, c.StaticData); err != nil {
			return err
		}
	}
	// the engine stops on Close, after the final drain
	if err := e.Initialize(logging.WithLogger(context.Background(), log)); err != nil {
		return err
	}
	results, err := e.StartProcessing()
	if err != nil {
		_ = e.Close()
		return err
	}

	sinkList, err := buildSinks(ctx, c, stdout)
	if err != nil {
		_ = e.Close()
		return err
	}
	forwarder, err := sinks.NewForwarder(results, sinkList, sinks.WithLogger(log))
	if err != nil {
		_ = e.Close()
		return err
	}
	// the forwarder outlives ctx so the results of the final flush are written
	stopped := forwarder.Start(context.Background())

	if !c.Metrics.Disabled {
		ms := metrics.NewMetricsServer(metrics.WithAddr(c.Metrics.Addr), metrics.WithHealthChecker(e), metrics.WithPendingReader(e))
		shutdown, err := ms.Start(ctx)
		if err != nil {
			_ = e.Close()
			<-stopped
			return closeAll(fmt.Errorf("failed to start metrics server, %w", err), forwarder)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	src, err := buildSource(ctx, c, e, stdin)
	if err != nil {
		_ = e.Close()
		<-stopped
		return closeAll(err, forwarder)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() { _ = e.Close() }()
		runErr := src.Run(gCtx)
		if errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
		if runErr == nil && c.Source.Kind == config.SourceJSONL && ctx.Err() == nil {
			runErr = closeStreams(ctx, e, src.Watermarks())
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), c.Engine.DrainTimeout)
		defer cancel()
		if err := e.Drain(drainCtx); err != nil {
			log.Warnw("Failed to drain pending batches", zap.Error(err))
		}
		return runErr
	})
	g.Go(func() error {
		for err := range e.Errors() {
			log.Errorw("Failed to evaluate window", zap.Error(err))
		}
		return nil
	})
	err = g.Wait()
	<-stopped
	err = closeAll(err, forwarder, src)
	log.Info("Continuous query engine stopped")
	return err
}

// closeStreams moves every stream which saw events past the widest window over it, so that every
// window holding an event reports.
func closeStreams(ctx context.Context, e *engine.Engine, watermarks map[string]int64) error {
	widths := make(map[string]int64)
	for _, w := range e.ParsedQuery().Windows {
		widths[w.Stream] = max(widths[w.Stream], w.Width)
	}
	for _, name := range e.Streams() {
		wm, ok := watermarks[name]
		if !ok {
			continue
		}
		if err := e.CloseStream(ctx, name, wm+widths[name]+1); err != nil {
			return err
		}
	}
	return nil
}

func loadStaticData(e *engine.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open static data, %w", err)
	}
	defer func() { _ = f.Close() }()
	quads, err := rdf.ReadQuads(f)
	if err != nil {
		return fmt.Errorf("failed to read static data, %w", err)
	}
	e.AddStaticData(quads...)
	return nil
}

func natsOptions(c config.NatsConfig) natsclient.Options {
	return natsclient.Options{
		Auth: natsclient.Auth{User: c.User, Password: c.Password, Token: c.Token},
		TLS:  c.TLS,
		Name: CLIName,
	}
}

func buildSource(ctx context.Context, c *config.Config, e *engine.Engine, stdin io.Reader) (sources.Source, error) {
	log := logging.FromContext(ctx)
	switch c.Source.Kind {
	case config.SourceJSONL:
		r := stdin
		if c.Source.File != "-" {
			f, err := os.Open(c.Source.File)
			if err != nil {
				return nil, fmt.Errorf("failed to open events, %w", err)
			}
			r = f
		}
		return jsonl.New(c.Source.Kind, r, e,
			jsonl.WithLogger(log),
			jsonl.WithSkipInvalid(c.Source.SkipInvalid),
			jsonl.WithMaxLineSize(c.Source.MaxLineSize))
	case config.SourceNats:
		return natssource.New(ctx, c.Source.Kind, c.Source.Nats.URL, c.Source.Nats.Subject, e,
			natssource.WithLogger(log),
			natssource.WithQueue(c.Source.Nats.Queue),
			natssource.WithConnectionOptions(natsOptions(c.Source.Nats)))
	case config.SourceHTTP:
		return httpsource.NewHttpSource(ctx, c.Source.Kind, e,
			httpsource.WithLogger(log),
			httpsource.WithAddr(c.Source.HTTP.Addr),
			httpsource.WithAuthToken(c.Source.HTTP.AuthToken),
			httpsource.WithMaxBodySize(c.Source.HTTP.MaxBodySize))
	default:
		return nil, fmt.Errorf("unsupported source kind %q", c.Source.Kind)
	}
}

func buildSinks(ctx context.Context, c *config.Config, stdout io.Writer) ([]sinks.Sink, error) {
	log := logging.FromContext(ctx)
	var out []sinks.Sink
	for _, kind := range c.Sink.Kinds {
		var (
			s   sinks.Sink
			err error
		)
		switch kind {
		case config.SinkLog:
			s, err = sinklogger.NewToLog(kind, sinklogger.WithLogger(log))
		case config.SinkStdout:
			s = writer.NewToWriter(kind, nopCloser{stdout})
		case config.SinkFile:
			var f *os.File
			if f, err = os.Create(c.Sink.File); err == nil {
				s = writer.NewToWriter(kind, f)
			}
		case config.SinkNats:
			s, err = natssink.NewToNats(ctx, kind, c.Sink.Nats.URL, c.Sink.Nats.Subject, natsOptions(c.Sink.Nats))
		case config.SinkBlackhole:
			s = blackhole.NewBlackhole(kind)
		default:
			err = fmt.Errorf("unsupported sink kind %q", kind)
		}
		if err != nil {
			for _, built := range out {
				_ = built.Close()
			}
			return nil, fmt.Errorf("failed to create %s sink, %w", kind, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// nopCloser keeps the stdout sink from closing the process stdout.
type nopCloser struct {
	io.Writer
}

func closeAll(err error, closers ...io.Closer) error {
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
