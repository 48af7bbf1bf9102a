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

package sliding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/window"
)

type options struct {
	// reportPolicy decides which active windows are eligible to emit
	reportPolicy window.ReportPolicy
	// tick decides whether eligible windows are delivered
	tick window.Tick
	// startTime seeds the anchor and the delivery time
	startTime    int64
	hasStartTime bool
	// period is the event time distance between Periodic reports, zero means one slide
	period int64
	logger *zap.SugaredLogger
}

func defaultOptions() *options {
	return &options{
		reportPolicy: window.OnWindowClose,
		tick:         window.TimeDriven,
	}
}

type Option func(*options) error

// WithReportPolicy sets the report policy
func WithReportPolicy(r window.ReportPolicy) Option {
	return func(o *options) error {
		o.reportPolicy = r
		return nil
	}
}

// WithTick sets the tick policy
func WithTick(t window.Tick) Option {
	return func(o *options) error {
		o.tick = t
		return nil
	}
}

// WithStartTime anchors the window grid bookkeeping at ts before any event arrives.
// Events older than ts are treated as out of order.
func WithStartTime(ts int64) Option {
	return func(o *options) error {
		o.startTime = ts
		o.hasStartTime = true
		return nil
	}
}

// WithPeriod sets the event time period of the Periodic report policy
func WithPeriod(period int64) Option {
	return func(o *options) error {
		if period <= 0 {
			return fmt.Errorf("period must be positive, got %d", period)
		}
		o.period = period
		return nil
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}
