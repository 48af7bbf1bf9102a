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

// Package nats publishes results as JSON messages on a NATS subject.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	natslib "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	natsclient "github.com/numaproj/numaflow-rsp/pkg/shared/clients/nats"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/sinks"
)

// ToNats publishes one message per result.
type ToNats struct {
	name     string
	subject  string
	natsConn *natslib.Conn
	logger   *zap.SugaredLogger
}

var _ sinks.Sink = (*ToNats)(nil)

// NewToNats connects to url.
func NewToNats(ctx context.Context, name string, url string, subject string, connOpts natsclient.Options) (*ToNats, error) {
	logger := logging.FromContext(ctx).With("sink", name)
	conn, err := natsclient.Connect(logging.WithLogger(ctx, logger), url, connOpts)
	if err != nil {
		return nil, err
	}
	return &ToNats{name: name, subject: subject, natsConn: conn, logger: logger}, nil
}

func (t *ToNats) GetName() string {
	return t.name
}

// Write publishes the results and waits for the server to acknowledge them.
func (t *ToNats) Write(ctx context.Context, results []engine.Result) error {
	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal result, %w", err)
		}
		if err := t.natsConn.Publish(t.subject, data); err != nil {
			return fmt.Errorf("failed to publish result, %w", err)
		}
	}
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return t.natsConn.FlushTimeout(timeout)
}

func (t *ToNats) Close() error {
	t.logger.Info("Shutting down nats sink...")
	err := t.natsConn.FlushTimeout(time.Second)
	t.natsConn.Close()
	return err
}
