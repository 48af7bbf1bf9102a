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

// Package sinks delivers engine results to external destinations.
package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
)

// Sink writes results to a destination.
type Sink interface {
	GetName() string
	Write(ctx context.Context, results []engine.Result) error
	Close() error
}

// options for forwarding the results
type options struct {
	// readBatchSize is the largest number of results written at once
	readBatchSize int
	// batchTimeout is how long a partial batch waits for more results
	batchTimeout time.Duration
	// logger is used to pass the logger variable
	logger *zap.SugaredLogger
}

type Option func(*options) error

func defaultOptions() *options {
	return &options{
		readBatchSize: 100,
		batchTimeout:  100 * time.Millisecond,
	}
}

// WithReadBatchSize sets the read batch size
func WithReadBatchSize(size int) Option {
	return func(o *options) error {
		if size <= 0 {
			return fmt.Errorf("read batch size must be positive, got %d", size)
		}
		o.readBatchSize = size
		return nil
	}
}

// WithBatchTimeout sets how long a partial batch waits before it is written
func WithBatchTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.batchTimeout = d
		return nil
	}
}

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

// Forwarder reads results and writes them in batches to every sink.
type Forwarder struct {
	results <-chan engine.Result
	sinks   []Sink
	opts    *options
}

// NewForwarder returns a Forwarder reading results.
func NewForwarder(results <-chan engine.Result, sinks []Sink, opts ...Option) (*Forwarder, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = logging.NewLogger()
	}
	return &Forwarder{results: results, sinks: sinks, opts: o}, nil
}

// Start forwards until the result channel is closed, the last partial batch is written before the
// returned channel closes. Write failures are logged and counted, they never stop the forwarder.
func (f *Forwarder) Start(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		f.opts.logger.Info("Starting sink forwarder...")
		batch := make([]engine.Result, 0, f.opts.readBatchSize)
		timer := time.NewTimer(f.opts.batchTimeout)
		defer timer.Stop()
		for {
			select {
			case r, ok := <-f.results:
				if !ok {
					f.write(ctx, batch)
					f.opts.logger.Info("Result channel closed, sink forwarder stopped")
					return
				}
				batch = append(batch, r)
				if len(batch) < f.opts.readBatchSize {
					continue
				}
			case <-timer.C:
				timer.Reset(f.opts.batchTimeout)
			}
			f.write(ctx, batch)
			batch = batch[:0]
		}
	}()
	return stopped
}

func (f *Forwarder) write(ctx context.Context, batch []engine.Result) {
	if len(batch) == 0 {
		return
	}
	for _, s := range f.sinks {
		start := time.Now()
		if err := s.Write(ctx, batch); err != nil {
			writeErrors.WithLabelValues(s.GetName()).Inc()
			f.opts.logger.Errorw("Failed to write results", zap.String("sink", s.GetName()), zap.Int("count", len(batch)), zap.Error(err))
			continue
		}
		writeCount.WithLabelValues(s.GetName()).Add(float64(len(batch)))
		writeProcessingTime.WithLabelValues(s.GetName()).Observe(float64(time.Since(start).Microseconds()))
	}
}

// Close closes every sink.
func (f *Forwarder) Close() error {
	var err error
	for _, s := range f.sinks {
		err = multierr.Append(err, s.Close())
	}
	return err
}
