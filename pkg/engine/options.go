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

package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/r2r"
	"github.com/numaproj/numaflow-rsp/pkg/rspql"
	"github.com/numaproj/numaflow-rsp/pkg/window"
)

// Parser turns continuous query text into window declarations and the embedded query.
type Parser interface {
	Parse(query string) (*rspql.ParsedQuery, error)
}

// options for the engine
type options struct {
	// parser parses the continuous query
	parser Parser
	// evaluator evaluates the embedded query, nil means the default SPARQL evaluator
	evaluator r2r.Evaluator
	// inputBufferSize is the capacity of every window ingestion channel
	inputBufferSize int
	// resultBufferSize is the capacity of the result channel
	resultBufferSize int
	// errorBufferSize is the capacity of the evaluation error channel
	errorBufferSize int
	// reportPolicy is applied to every window
	reportPolicy window.ReportPolicy
	// tick is applied to every window
	tick window.Tick
	// logger is used to pass the logger variable
	logger *zap.SugaredLogger
}

type Option func(*options) error

func defaultOptions() *options {
	return &options{
		parser:           rspql.NewParser(),
		inputBufferSize:  64,
		resultBufferSize: 1024,
		errorBufferSize:  16,
		reportPolicy:     window.OnWindowClose,
		tick:             window.TimeDriven,
	}
}

// WithParser sets the continuous query parser
func WithParser(p Parser) Option {
	return func(o *options) error {
		if p == nil {
			return fmt.Errorf("parser must not be nil")
		}
		o.parser = p
		return nil
	}
}

// WithEvaluator sets the evaluator of the embedded query
func WithEvaluator(e r2r.Evaluator) Option {
	return func(o *options) error {
		if e == nil {
			return fmt.Errorf("evaluator must not be nil")
		}
		o.evaluator = e
		return nil
	}
}

// WithInputBufferSize sets the capacity of every window ingestion channel
func WithInputBufferSize(size int) Option {
	return func(o *options) error {
		if size < 0 {
			return fmt.Errorf("input buffer size must not be negative, got %d", size)
		}
		o.inputBufferSize = size
		return nil
	}
}

// WithResultBufferSize sets the capacity of the result channel
func WithResultBufferSize(size int) Option {
	return func(o *options) error {
		if size < 0 {
			return fmt.Errorf("result buffer size must not be negative, got %d", size)
		}
		o.resultBufferSize = size
		return nil
	}
}

// WithErrorBufferSize sets the capacity of the evaluation error channel
func WithErrorBufferSize(size int) Option {
	return func(o *options) error {
		if size < 0 {
			return fmt.Errorf("error buffer size must not be negative, got %d", size)
		}
		o.errorBufferSize = size
		return nil
	}
}

// WithReportPolicy sets the report policy of every window
func WithReportPolicy(p window.ReportPolicy) Option {
	return func(o *options) error {
		o.reportPolicy = p
		return nil
	}
}

// WithTick sets the tick policy of every window
func WithTick(t window.Tick) Option {
	return func(o *options) error {
		o.tick = t
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
