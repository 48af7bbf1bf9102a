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

// Package config loads the settings of the rsp command from flags, RSP_ environment variables and
// an optional YAML file, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/numaproj/numaflow-rsp/pkg/window"
)

const EnvPrefix = "RSP"

const (
	SourceJSONL = "jsonl"
	SourceNats  = "nats"
	SourceHTTP  = "http"
)

const (
	SinkLog       = "log"
	SinkStdout    = "stdout"
	SinkFile      = "file"
	SinkNats      = "nats"
	SinkBlackhole = "blackhole"
)

type Config struct {
	// Query is the continuous query text, QueryFile is read when it is empty
	Query     string `mapstructure:"query"`
	QueryFile string `mapstructure:"queryFile"`
	// StaticData is an N-Quads file loaded as background knowledge
	StaticData string        `mapstructure:"staticData"`
	Engine     EngineConfig  `mapstructure:"engine"`
	Source     SourceConfig  `mapstructure:"source"`
	Sink       SinkConfig    `mapstructure:"sink"`
	Metrics    MetricsConfig `mapstructure:"metrics"`
}

type EngineConfig struct {
	InputBufferSize  int    `mapstructure:"inputBufferSize"`
	ResultBufferSize int    `mapstructure:"resultBufferSize"`
	ErrorBufferSize  int    `mapstructure:"errorBufferSize"`
	ReportPolicy     string `mapstructure:"reportPolicy"`
	Tick             string `mapstructure:"tick"`
	// DrainTimeout bounds the flush of a finite source
	DrainTimeout time.Duration `mapstructure:"drainTimeout"`
}

type SourceConfig struct {
	Kind string `mapstructure:"kind"`
	// File is read by the jsonl source, "-" is stdin
	File        string     `mapstructure:"file"`
	SkipInvalid bool       `mapstructure:"skipInvalid"`
	MaxLineSize int        `mapstructure:"maxLineSize"`
	Nats        NatsConfig `mapstructure:"nats"`
	HTTP        HTTPConfig `mapstructure:"http"`
}

type SinkConfig struct {
	Kinds []string `mapstructure:"kinds"`
	// File is written by the file sink
	File string     `mapstructure:"file"`
	Nats NatsConfig `mapstructure:"nats"`
}

type NatsConfig struct {
	URL      string `mapstructure:"url"`
	Subject  string `mapstructure:"subject"`
	Queue    string `mapstructure:"queue"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
	TLS      bool   `mapstructure:"tls"`
}

type HTTPConfig struct {
	Addr        string `mapstructure:"addr"`
	AuthToken   string `mapstructure:"authToken"`
	MaxBodySize int64  `mapstructure:"maxBodySize"`
}

type MetricsConfig struct {
	Addr     string `mapstructure:"addr"`
	Disabled bool   `mapstructure:"disabled"`
}

// SetDefaults registers the default of every key, a key without one is invisible to Unmarshal when
// it is only set through the environment.
func SetDefaults(v *viper.Viper) {
	for _, key := range []string{
		"query", "queryFile", "staticData", "sink.file", "source.http.authToken",
		"source.nats.url", "source.nats.subject", "source.nats.queue", "source.nats.user", "source.nats.password", "source.nats.token",
		"sink.nats.url", "sink.nats.subject", "sink.nats.user", "sink.nats.password", "sink.nats.token",
	} {
		v.SetDefault(key, "")
	}
	for _, key := range []string{"source.skipInvalid", "source.nats.tls", "sink.nats.tls", "metrics.disabled"} {
		v.SetDefault(key, false)
	}
	v.SetDefault("engine.inputBufferSize", 64)
	v.SetDefault("engine.resultBufferSize", 1024)
	v.SetDefault("engine.errorBufferSize", 16)
	v.SetDefault("engine.reportPolicy", window.OnWindowClose.String())
	v.SetDefault("engine.tick", window.TimeDriven.String())
	v.SetDefault("engine.drainTimeout", 30*time.Second)
	v.SetDefault("source.kind", SourceJSONL)
	v.SetDefault("source.file", "-")
	v.SetDefault("source.maxLineSize", 1024*1024)
	v.SetDefault("source.http.addr", ":8443")
	v.SetDefault("source.http.maxBodySize", 4*1024*1024)
	v.SetDefault("sink.kinds", []string{SinkStdout})
	v.SetDefault("metrics.addr", ":2469")
}

// Load reads the optional config file and unmarshals every layer of v.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load configuration file. %w", err)
		}
	}
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration. %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings which can be checked without connecting anywhere.
func (c *Config) Validate() error {
	if (c.Query == "") == (c.QueryFile == "") {
		return fmt.Errorf("exactly one of query and query file is required")
	}
	if _, err := window.ParseReportPolicy(c.Engine.ReportPolicy); err != nil {
		return err
	}
	if _, err := window.ParseTick(c.Engine.Tick); err != nil {
		return err
	}
	switch c.Source.Kind {
	case SourceJSONL, SourceHTTP:
	case SourceNats:
		if c.Source.Nats.URL == "" || c.Source.Nats.Subject == "" {
			return fmt.Errorf("nats source requires url and subject")
		}
	default:
		return fmt.Errorf("unsupported source kind %q", c.Source.Kind)
	}
	if len(c.Sink.Kinds) == 0 {
		return fmt.Errorf("at least one sink is required")
	}
	for _, kind := range c.Sink.Kinds {
		switch kind {
		case SinkLog, SinkStdout, SinkBlackhole:
		case SinkFile:
			if c.Sink.File == "" {
				return fmt.Errorf("file sink requires a file")
			}
		case SinkNats:
			if c.Sink.Nats.URL == "" || c.Sink.Nats.Subject == "" {
				return fmt.Errorf("nats sink requires url and subject")
			}
		default:
			return fmt.Errorf("unsupported sink kind %q", kind)
		}
	}
	return nil
}

// ReadQuery returns the continuous query text.
func (c *Config) ReadQuery() (string, error) {
	if c.Query != "" {
		return c.Query, nil
	}
	data, err := os.ReadFile(c.QueryFile)
	if err != nil {
		return "", fmt.Errorf("failed to read query file, %w", err)
	}
	return string(data), nil
}

// ReportPolicy returns the parsed report policy, Validate has checked it.
func (c *Config) ReportPolicy() window.ReportPolicy {
	p, _ := window.ParseReportPolicy(c.Engine.ReportPolicy)
	return p
}

// Tick returns the parsed tick, Validate has checked it.
func (c *Config) Tick() window.Tick {
	t, _ := window.ParseTick(c.Engine.Tick)
	return t
}
