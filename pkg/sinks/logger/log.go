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

package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/sinks"
)

// ToLog prints the results to a log sink.
type ToLog struct {
	name   string
	logger *zap.SugaredLogger
}

var _ sinks.Sink = (*ToLog)(nil)

type Option func(*ToLog) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) error {
		t.logger = log
		return nil
	}
}

// NewToLog returns ToLog type.
func NewToLog(name string, opts ...Option) (*ToLog, error) {
	toLog := &ToLog{name: name}
	for _, o := range opts {
		if err := o(toLog); err != nil {
			return nil, err
		}
	}
	if toLog.logger == nil {
		toLog.logger = logging.NewLogger()
	}
	toLog.logger = toLog.logger.With("sink", name)
	return toLog, nil
}

// GetName returns the name.
func (t *ToLog) GetName() string {
	return t.name
}

// Write writes to the log.
func (t *ToLog) Write(_ context.Context, results []engine.Result) error {
	for _, r := range results {
		t.logger.Infow("Result",
			zap.String("window", r.Window),
			zap.Int64("from", r.From),
			zap.Int64("to", r.To),
			zap.Int64("windowOpen", r.WindowOpen),
			zap.Int64("windowClose", r.WindowClose),
			zap.Stringer("bindings", r.Bindings))
	}
	return nil
}

func (t *ToLog) Close() error {
	_ = t.logger.Sync()
	return nil
}
