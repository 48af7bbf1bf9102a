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

package blackhole

import (
	"context"

	"go.uber.org/atomic"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/sinks"
)

// Blackhole is a sink to emulate /dev/null
type Blackhole struct {
	name    string
	written atomic.Int64
}

var _ sinks.Sink = (*Blackhole)(nil)

// NewBlackhole returns a new Blackhole sink.
func NewBlackhole(name string) *Blackhole {
	return &Blackhole{name: name}
}

// GetName returns the name.
func (b *Blackhole) GetName() string {
	return b.name
}

// Write drops the results.
func (b *Blackhole) Write(_ context.Context, results []engine.Result) error {
	b.written.Add(int64(len(results)))
	return nil
}

// Written returns the number of results dropped so far.
func (b *Blackhole) Written() int64 {
	return b.written.Load()
}

func (b *Blackhole) Close() error {
	return nil
}
