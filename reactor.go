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

// Package reactor implements a reusable, non-blocking, readiness-driven
// TCP server core: a single reactor goroutine multiplexes listening and
// connection sockets via epoll, and a separate sender goroutine fairly
// drains pending outbound bytes across connections.
package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	errs "github.com/jandudek/reactor/pkg/errors"
	"github.com/jandudek/reactor/logger"
)

const (
	epollWaitTimeoutMillis = 1000
	maxEpollEvents         = 32
)

// Reactor is the shared core: it owns the epoll instance, the fd-keyed
// registry of live Endpoints and Connections, and the reactor and sender
// goroutines.
type Reactor struct {
	epfd   int
	config Config
	logger zerolog.Logger

	open atomic.Bool

	registryMu sync.Mutex
	registry   map[int]*registryEntry

	senderWake chan struct{}
	closeWg    sync.WaitGroup
}

// NewReactor creates the epoll instance and starts the reactor and sender
// goroutines. The only failure mode is epoll_create1 failing.
func NewReactor(opts ...ConfigOption) (*Reactor, error) {
	config := NewConfig(opts...)

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrapf(errs.ErrEpollCreateFailed, "epoll_create1: %v", err)
	}

	r := &Reactor{
		epfd:       epfd,
		config:     config,
		logger:     logger.NewLogger("reactor", config.LoggerLevel, config.PrettyLogger),
		registry:   make(map[int]*registryEntry),
		senderWake: make(chan struct{}, 1),
	}
	r.open.Store(true)

	r.closeWg.Add(2)
	go r.epollLoop()
	go r.sendLoop()

	r.logger.Info().Msg("reactor started")

	return r, nil
}

// Close clears the open flag, wakes the sender, and waits for both
// goroutines to exit. After Close returns, no registered Connection
// receives further events.
func (r *Reactor) Close() {
	if !r.open.CompareAndSwap(true, false) {
		return
	}

	r.wakeSender()
	r.closeWg.Wait()
	_ = unix.Close(r.epfd)

	r.logger.Info().Msg("reactor stopped")
}

func (r *Reactor) wakeSender() {
	select {
	case r.senderWake <- struct{}{}:
	default:
	}
}

// registerListener adds a listening socket to the registry and subscribes
// it for level-triggered readability.
func (r *Reactor) registerListener(fd int, e *Endpoint) {
	r.registryMu.Lock()
	r.registry[fd] = &registryEntry{kind: registryKindListener, ep: e}
	r.registryMu.Unlock()

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		r.logger.Warn().Err(err).Int("fd", fd).Msg("epoll_ctl add listener failed")
	}
}

// unregisterListener removes a listening socket from the registry.
func (r *Reactor) unregisterListener(fd int) {
	r.registryMu.Lock()
	delete(r.registry, fd)
	r.registryMu.Unlock()

	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// registerConnection adds a Connection to the registry and subscribes it
// for edge-triggered read/write/error/hangup/peer-rdhup.
func (r *Reactor) registerConnection(c *Connection) {
	r.registryMu.Lock()
	r.registry[c.fd] = &registryEntry{kind: registryKindConnection, conn: c}
	r.registryMu.Unlock()

	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd:     int32(c.fd),
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, c.fd, &ev); err != nil {
		r.logger.Warn().Err(err).Int("fd", c.fd).Msg("epoll_ctl add connection failed")
	}
}

// unregisterConnection removes a Connection from the registry and from its
// Endpoint's map, unsubscribes it from epoll, ensures it is closed, and
// runs its cleanup callback exactly once.
func (r *Reactor) unregisterConnection(fd int, c *Connection) {
	r.registryMu.Lock()
	_, present := r.registry[fd]
	delete(r.registry, fd)
	r.registryMu.Unlock()

	if !present {
		return
	}

	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)

	if c.endpoint != nil {
		c.endpoint.remove(fd)
	}

	c.Close()

	if c.endpoint != nil && c.endpoint.onCleanup != nil {
		c.endpoint.onCleanup(c)
	}
}

// epollLoop is the Reactor thread: local-close sweep, readiness wait,
// dispatch.
func (r *Reactor) epollLoop() {
	defer r.closeWg.Done()

	events := make([]unix.EpollEvent, maxEpollEvents)

	for r.open.Load() {
		r.localCloseSweep()

		n, err := unix.EpollWait(r.epfd, events, epollWaitTimeoutMillis)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}

			r.logger.Warn().Err(err).Msg("epoll_wait failed")

			continue
		}

		for i := 0; i < n; i++ {
			r.dispatch(events[i])
		}
	}
}

// localCloseSweep reclaims Connections closed by user code or by
// TrySend/TryRecv between iterations, since those paths only flip the
// connected flag and never touch the registry themselves.
func (r *Reactor) localCloseSweep() {
	r.registryMu.Lock()
	var toClose []*Connection
	for _, entry := range r.registry {
		if entry.kind == registryKindConnection && !entry.conn.IsConnected() {
			toClose = append(toClose, entry.conn)
		}
	}
	r.registryMu.Unlock()

	for _, c := range toClose {
		r.unregisterConnection(c.fd, c)
	}
}

func (r *Reactor) dispatch(ev unix.EpollEvent) {
	fd := int(ev.Fd)

	r.registryMu.Lock()
	entry, ok := r.registry[fd]
	r.registryMu.Unlock()

	if !ok {
		return
	}

	if entry.kind == registryKindListener {
		r.dispatchListener(entry.ep)

		return
	}

	r.dispatchConnection(entry.conn, ev.Events)
}

func (r *Reactor) dispatchListener(e *Endpoint) {
	for {
		c := e.accept()
		if c == nil {
			return
		}

		r.registerConnection(c)

		if e.onInit != nil {
			e.onInit(c)
		}
	}
}

func (r *Reactor) dispatchConnection(c *Connection, events uint32) {
	if events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		r.unregisterConnection(c.fd, c)

		return
	}

	if events&unix.EPOLLIN != 0 {
		if c.tryRecv() {
			if c.endpoint != nil && c.endpoint.onProcess != nil {
				c.endpoint.onProcess(c)
			}
		}
	}

	if events&unix.EPOLLOUT != 0 {
		c.setWritable()
		r.wakeSender()
	}
}
