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

// Package jsonl reads events from JSON lines, one event per line.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/sources"
)

type jsonlSource struct {
	name        string
	reader      io.Reader
	closer      io.Closer
	dispatcher  *sources.Dispatcher
	skipInvalid bool
	maxLineSize int
	logger      *zap.SugaredLogger
}

var _ sources.Source = (*jsonlSource)(nil)

type Option func(*jsonlSource) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *jsonlSource) error {
		o.logger = l
		return nil
	}
}

// WithSkipInvalid logs and skips lines which do not decode or name an unknown stream
func WithSkipInvalid(skip bool) Option {
	return func(o *jsonlSource) error {
		o.skipInvalid = skip
		return nil
	}
}

// WithMaxLineSize sets the longest accepted line in bytes
func WithMaxLineSize(size int) Option {
	return func(o *jsonlSource) error {
		if size <= 0 {
			return fmt.Errorf("max line size must be positive, got %d", size)
		}
		o.maxLineSize = size
		return nil
	}
}

// New returns a source reading r. When r is an io.Closer, Close closes it.
func New(name string, r io.Reader, provider sources.StreamProvider, opts ...Option) (sources.Source, error) {
	s := &jsonlSource{
		name:        name,
		reader:      r,
		maxLineSize: 1024 * 1024,
		logger:      logging.NewLogger(),
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	s.logger = s.logger.With("source", name)
	s.dispatcher = sources.NewDispatcher(name, provider, s.logger)
	return s, nil
}

func (s *jsonlSource) GetName() string {
	return s.name
}

// Run dispatches every line until the end of the input.
func (s *jsonlSource) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.reader)
	// the token limit is the larger of the buffer capacity and max
	scanner.Buffer(make([]byte, 0, min(64*1024, s.maxLineSize)), s.maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := s.dispatcher.DispatchBytes(ctx, data); err != nil {
			if s.skipInvalid && sources.Recoverable(err) {
				s.logger.Warnw("Skipping invalid event", zap.Int("line", line), zap.Error(err))
				continue
			}
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	s.logger.Infow("Read all events", zap.Int("lines", line))
	return nil
}

func (s *jsonlSource) Watermarks() map[string]int64 {
	return s.dispatcher.Watermarks()
}

func (s *jsonlSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
