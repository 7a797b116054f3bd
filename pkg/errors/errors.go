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

// Package errors collects the sentinel errors surfaced by the reactor
// package, so callers can errors.Is against a stable value instead of
// matching on message text.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPort occurs when an Endpoint is created with a port outside [1, 65535].
	ErrInvalidPort = errors.New("port must be in range [1, 65535]")
	// ErrEpollCreateFailed occurs when the Reactor cannot create its epoll instance.
	ErrEpollCreateFailed = errors.New("epoll_create1 failed")
	// ErrSocketFailed occurs when a listening socket cannot be created.
	ErrSocketFailed = errors.New("socket creation failed")
	// ErrBindFailed occurs when a listening socket cannot bind to its port.
	ErrBindFailed = errors.New("bind failed")
	// ErrListenFailed occurs when a bound socket cannot be put into listening mode.
	ErrListenFailed = errors.New("listen failed")
	// ErrBufferOverflow occurs when a Buffer would grow beyond its hard maximum.
	ErrBufferOverflow = errors.New("buffer overflow")
	// ErrReactorClosed occurs when an Endpoint is created on a Reactor that has shut down.
	ErrReactorClosed = errors.New("reactor closed")
)

// ErrorSetsockopt wraps a setsockopt failure with the option name that failed.
func ErrorSetsockopt(name string, err error) error {
	return fmt.Errorf("setsockopt %s failed: %w", name, err)
}
