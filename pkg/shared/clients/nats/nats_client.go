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

// Package nats builds NATS connections shared by the NATS source and sink.
package nats

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
)

// Auth holds the optional credentials of a connection, at most one kind is used.
type Auth struct {
	User     string
	Password string
	Token    string
}

// Options configures a connection.
type Options struct {
	Auth Auth
	// TLS enables TLS without verifying the server certificate
	TLS bool
	// Name is reported to the server
	Name string
	// ReconnectWait is the delay between reconnect attempts
	ReconnectWait time.Duration
}

// Connect returns a connection to url which reconnects forever.
func Connect(ctx context.Context, url string, o Options, natsOptions ...nats.Option) (*nats.Conn, error) {
	log := logging.FromContext(ctx)
	if o.ReconnectWait == 0 {
		o.ReconnectWait = 3 * time.Second
	}
	opts := []nats.Option{
		// if max reconnects is set to -1, it will try to reconnect forever
		nats.MaxReconnects(-1),
		nats.ReconnectWait(o.ReconnectWait),
		nats.PingInterval(3 * time.Second),
		// If the server doesn't respond to 2 pings we will reconnect
		nats.MaxPingsOutstanding(2),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorw("Nats: error occurred for subscription", zap.Error(err))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("Nats: connection closed")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Errorw("Nats: disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Nats: reconnected")
		}),
		// Write (and flush) timeout
		nats.FlusherTimeout(10 * time.Second),
	}
	if o.Name != "" {
		opts = append(opts, nats.Name(o.Name))
	}
	switch {
	case o.Auth.User != "":
		opts = append(opts, nats.UserInfo(o.Auth.User, o.Auth.Password))
	case o.Auth.Token != "":
		opts = append(opts, nats.Token(o.Auth.Token))
	}
	if o.TLS {
		opts = append(opts, nats.Secure(&tls.Config{
			InsecureSkipVerify: true,
		}))
	}
	opts = append(opts, natsOptions...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats url=%s: %w", url, err)
	}
	return nc, nil
}
