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

import (
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	errs "github.com/jandudek/reactor/pkg/errors"
	gainsocket "github.com/jandudek/reactor/pkg/socket"
)

// ConnInitFunc is invoked on the Reactor thread immediately after a new
// Connection has been registered.
type ConnInitFunc func(c *Connection)

// ProcessFunc is invoked on the Reactor thread after a successful recv.
type ProcessFunc func(c *Connection)

// CleanupFunc is invoked on the Reactor thread after a Connection has been
// closed and removed from both registries, and before its destruction.
type CleanupFunc func(c *Connection)

// Endpoint owns one listening socket bound to a TCP port, the three user
// callbacks, and the set of Connections accepted on it. Its lifecycle is
// independent of the Reactor and of other Endpoints; it is data, not a
// thread.
type Endpoint struct {
	fd   int
	port int

	onInit    ConnInitFunc
	onProcess ProcessFunc
	onCleanup CleanupFunc

	open atomic.Bool

	connMu sync.Mutex
	conns  map[int]*Connection

	reactor *Reactor
	logger  zerolog.Logger
}

// NewEndpoint validates the port, creates a bound+listening stream socket,
// and registers it with the Reactor. The Endpoint stays alive for as long
// as any caller or the Reactor holds a reference to it.
func (r *Reactor) NewEndpoint(
	port int, onInit ConnInitFunc, onProcess ProcessFunc, onCleanup CleanupFunc,
) (*Endpoint, error) {
	if port < 1 || port > 65535 {
		return nil, errs.ErrInvalidPort
	}

	if !r.open.Load() {
		return nil, errs.ErrReactorClosed
	}

	fd, err := gainsocket.ListenTCP(port, r.config.ListenBacklog)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on port %d failed", port)
	}

	e := &Endpoint{
		fd:        fd,
		port:      port,
		onInit:    onInit,
		onProcess: onProcess,
		onCleanup: onCleanup,
		conns:     make(map[int]*Connection),
		reactor:   r,
		logger:    r.logger.With().Int("port", port).Logger(),
	}
	e.open.Store(true)

	r.registerListener(fd, e)

	e.logger.Info().Msg("endpoint listening")

	return e, nil
}

// IsOpen reports whether the Endpoint is still accepting connections.
func (e *Endpoint) IsOpen() bool {
	return e.open.Load()
}

// Close is idempotent. On first successful transition it unregisters the
// listening descriptor (stopping new accepts), closes every Connection it
// owns, and closes the listening descriptor itself. Connections are
// reclaimed from the registry asynchronously by the Reactor's next
// local-close sweep, which also runs their cleanup callbacks.
func (e *Endpoint) Close() {
	if !e.open.CompareAndSwap(true, false) {
		return
	}

	e.reactor.unregisterListener(e.fd)
	_ = unix.Close(e.fd)

	e.connMu.Lock()
	conns := make([]*Connection, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.connMu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	e.logger.Info().Msg("endpoint closed")
}

// accept accepts one pending connection on the listening socket and adds
// it to this Endpoint's map; the caller registers it with the Reactor.
// Returns nil if the Endpoint is no longer open or Accept4 fails (including
// when there is no more pending work).
func (e *Endpoint) accept() *Connection {
	if !e.IsOpen() {
		return nil
	}

	nfd, sa, err := unix.Accept4(e.fd, unix.SOCK_NONBLOCK)
	if err != nil {
		if !stderrors.Is(err, unix.EAGAIN) && !stderrors.Is(err, unix.EINTR) {
			e.logger.Warn().Err(err).Msg("accept failed")
		}

		return nil
	}

	if applyErr := gainsocket.ApplyAcceptedSockOpts(nfd, e.reactor.config.Cork); applyErr != nil {
		e.logger.Warn().Err(applyErr).Msg("could not apply accepted socket options")
	}

	remoteAddr := gainsocket.SockaddrToTCPAddr(sa)
	conn := newConnection(nfd, remoteAddr, e, e.reactor)

	e.connMu.Lock()
	e.conns[nfd] = conn
	e.connMu.Unlock()

	return conn
}

// remove erases the Connection from the Endpoint's map. Invoked by the
// Reactor while unregistering a Connection.
func (e *Endpoint) remove(fd int) {
	e.connMu.Lock()
	delete(e.conns, fd)
	e.connMu.Unlock()
}
