// Copyright (c) 2023 Paweł Gaczyński
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reactor

import "github.com/rs/zerolog"

const (
	defaultListenBacklog = 16
)

// ConfigOption mutates a Config under construction.
type ConfigOption func(*Config)

// Config holds the Reactor's tunables. All fields have spec-matching
// defaults; use the WithXxx options to override any of them.
type Config struct {
	// BufferChunkSize is the granularity Buffer growth rounds up to.
	BufferChunkSize int
	// BufferMaxSize is the hard cap a Buffer refuses to grow past.
	BufferMaxSize int
	// ListenBacklog is passed to listen(2) for every Endpoint.
	ListenBacklog int
	// Cork enables TCP_CORK on accepted sockets.
	Cork bool
	// SendSegmentSize bounds how many bytes a single TrySend call writes.
	SendSegmentSize int
	LoggerLevel     zerolog.Level
	PrettyLogger    bool
}

func WithBufferChunkSize(n int) ConfigOption {
	return func(c *Config) { c.BufferChunkSize = n }
}

func WithBufferMaxSize(n int) ConfigOption {
	return func(c *Config) { c.BufferMaxSize = n }
}

func WithListenBacklog(n int) ConfigOption {
	return func(c *Config) { c.ListenBacklog = n }
}

func WithCork(cork bool) ConfigOption {
	return func(c *Config) { c.Cork = cork }
}

func WithSendSegmentSize(n int) ConfigOption {
	return func(c *Config) { c.SendSegmentSize = n }
}

func WithLoggerLevel(level zerolog.Level) ConfigOption {
	return func(c *Config) { c.LoggerLevel = level }
}

func WithPrettyLogger(pretty bool) ConfigOption {
	return func(c *Config) { c.PrettyLogger = pretty }
}

// NewConfig applies opts over the spec-matching defaults.
func NewConfig(opts ...ConfigOption) Config {
	config := Config{
		BufferChunkSize: defaultBufferChunk,
		BufferMaxSize:   defaultBufferMax,
		ListenBacklog:   defaultListenBacklog,
		Cork:            true,
		SendSegmentSize: defaultSegmentBytes,
		LoggerLevel:     zerolog.ErrorLevel,
		PrettyLogger:    false,
	}

	for _, opt := range opts {
		opt(&config)
	}

	return config
}
