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

// Package nats reads JSON events from a NATS subject.
package nats

import (
	"context"
	"fmt"
	"time"

	natslib "github.com/nats-io/nats.go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	natsclient "github.com/numaproj/numaflow-rsp/pkg/shared/clients/nats"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/sources"
)

type natsSource struct {
	name       string
	subject    string
	queue      string
	bufferSize int
	connOpts   natsclient.Options
	logger     *zap.SugaredLogger
	natsConn   *natslib.Conn
	sub        *natslib.Subscription
	messages   chan *natslib.Msg
	done       chan struct{}
	dispatcher *sources.Dispatcher
}

var _ sources.Source = (*natsSource)(nil)

type Option func(*natsSource) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *natsSource) error {
		o.logger = l
		return nil
	}
}

// WithBufferSize sets the buffer size for storing the messages from nats
func WithBufferSize(s int) Option {
	return func(o *natsSource) error {
		if s <= 0 {
			return fmt.Errorf("buffer size must be positive, got %d", s)
		}
		o.bufferSize = s
		return nil
	}
}

// WithQueue makes the subscription join a queue group, members share the messages
func WithQueue(queue string) Option {
	return func(o *natsSource) error {
		o.queue = queue
		return nil
	}
}

// WithConnectionOptions sets the credentials and TLS of the connection
func WithConnectionOptions(c natsclient.Options) Option {
	return func(o *natsSource) error {
		o.connOpts = c
		return nil
	}
}

// New connects to url and subscribes to subject, messages are buffered until Run dispatches them.
func New(ctx context.Context, name string, url string, subject string, provider sources.StreamProvider, opts ...Option) (sources.Source, error) {
	n := &natsSource{
		name:       name,
		subject:    subject,
		bufferSize: 1000, // default size
		logger:     logging.FromContext(ctx),
	}
	for _, o := range opts {
		if err := o(n); err != nil {
			return nil, err
		}
	}
	n.logger = n.logger.With("source", name)
	n.messages = make(chan *natslib.Msg, n.bufferSize)
	n.done = make(chan struct{})
	n.dispatcher = sources.NewDispatcher(name, provider, n.logger)

	n.logger.Info("Connecting to nats service...")
	conn, err := natsclient.Connect(logging.WithLogger(ctx, n.logger), url, n.connOpts)
	if err != nil {
		return nil, err
	}
	n.natsConn = conn
	// the subscription handler blocks when the buffer is full, nats then flags the slow consumer
	sub, err := n.natsConn.QueueSubscribe(subject, n.queue, func(msg *natslib.Msg) {
		select {
		case n.messages <- msg:
		case <-n.done:
		}
	})
	if err != nil {
		n.natsConn.Close()
		return nil, fmt.Errorf("failed to QueueSubscribe nats messages, %w", err)
	}
	n.sub = sub
	if err := n.natsConn.Flush(); err != nil {
		n.natsConn.Close()
		return nil, fmt.Errorf("failed to flush nats subscription, %w", err)
	}
	return n, nil
}

func (ns *natsSource) GetName() string {
	return ns.name
}

// Run dispatches messages until ctx is done. Invalid events are logged and skipped.
func (ns *natsSource) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ns.messages:
			err := ns.dispatcher.DispatchBytes(ctx, msg.Data)
			switch {
			case err == nil:
			case sources.Recoverable(err):
				ns.logger.Warnw("Skipping invalid event", zap.String("subject", msg.Subject), zap.Error(err))
			case ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}
	}
}

func (ns *natsSource) Watermarks() map[string]int64 {
	return ns.dispatcher.Watermarks()
}

func (ns *natsSource) Close() error {
	ns.logger.Info("Shutting down nats source...")
	close(ns.done)
	err := multierr.Combine(ns.sub.Unsubscribe(), ns.natsConn.FlushTimeout(time.Second))
	if err != nil {
		ns.logger.Errorw("Failed to unsubscribe nats subscription", zap.Error(err))
	}
	ns.natsConn.Close()
	ns.logger.Info("Nats source shutdown")
	return err
}
