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
	"context"

	"github.com/numaproj/numaflow-rsp/pkg/rdf"
	"github.com/numaproj/numaflow-rsp/pkg/window"
)

// Stream is the producer handle of a named stream. Every batch added to it is delivered to each
// window declared on the stream.
type Stream struct {
	name   string
	engine *Engine
	tasks  []*windowTask
}

func (s *Stream) Name() string {
	return s.name
}

// Add delivers c to every window reading the stream. It blocks while a window input is full. ctx and
// an engine close abort the call only before the first window accepted c, a batch is then delivered to
// no window. Once a window accepted it, Add waits until every window of the stream did and only an
// engine close stops it. c must not be modified after Add returns.
func (s *Stream) Add(ctx context.Context, c *window.Container) error {
	e := s.engine
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.pending.Add(int64(len(s.tasks)))
	for i, t := range s.tasks {
		if i == 0 {
			select {
			case t.input <- c:
			case <-ctx.Done():
				e.pending.Sub(int64(len(s.tasks)))
				return ctx.Err()
			case <-e.ctx.Done():
				e.pending.Sub(int64(len(s.tasks)))
				return ErrEngineClosed
			}
		} else {
			select {
			case t.input <- c:
			case <-e.ctx.Done():
				e.pending.Sub(int64(len(s.tasks) - i))
				return ErrEngineClosed
			}
		}
		inputBufferSize.WithLabelValues(t.def.Name).Set(float64(len(t.input)))
	}
	ingestedBatches.WithLabelValues(s.name).Inc()
	ingestedQuads.WithLabelValues(s.name).Add(float64(c.Len()))
	return nil
}

// AddQuads adds the quads as one batch stamped with timestamp. An empty batch advances the event time
// of the windows without adding content.
func (s *Stream) AddQuads(ctx context.Context, quads []rdf.Quad, timestamp int64) error {
	return s.Add(ctx, window.NewContainer(quads, timestamp))
}
