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

// Package writer writes results as JSON lines.
package writer

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/multierr"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/sinks"
)

// ToWriter writes one JSON object per result. Each batch is flushed once written.
type ToWriter struct {
	name    string
	mu      sync.Mutex
	buf     *bufio.Writer
	encoder *json.Encoder
	closer  io.Closer
}

var _ sinks.Sink = (*ToWriter)(nil)

// NewToWriter returns a ToWriter, Close closes w when it is an io.Closer.
func NewToWriter(name string, w io.Writer) *ToWriter {
	buf := bufio.NewWriter(w)
	t := &ToWriter{
		name:    name,
		buf:     buf,
		encoder: json.NewEncoder(buf),
	}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

func (t *ToWriter) GetName() string {
	return t.name
}

func (t *ToWriter) Write(_ context.Context, results []engine.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range results {
		if err := t.encoder.Encode(r); err != nil {
			return err
		}
	}
	return t.buf.Flush()
}

func (t *ToWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.buf.Flush()
	if t.closer != nil {
		err = multierr.Append(err, t.closer.Close())
	}
	return err
}
