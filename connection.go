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
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

const stallTimeout = 5 * time.Second

// Connection is a single accepted TCP session with independent receive and
// send buffering. All public methods are safe to call from any goroutine;
// the Reactor-only methods below are invoked exclusively from the reactor
// and sender loops.
type Connection struct {
	fd         int
	remoteAddr net.Addr

	endpoint *Endpoint
	reactor  *Reactor

	connected atomic.Bool
	writable  atomic.Bool

	lastSend atomic.Int64 // unix nanos

	recvMu  sync.Mutex
	recvBuf *buffer

	sendMu  sync.Mutex
	sendBuf *buffer
}

func newConnection(fd int, remoteAddr net.Addr, endpoint *Endpoint, reactor *Reactor) *Connection {
	c := &Connection{
		fd:         fd,
		remoteAddr: remoteAddr,
		endpoint:   endpoint,
		reactor:    reactor,
		recvBuf:    newBuffer(reactor.config.BufferChunkSize, reactor.config.BufferMaxSize),
		sendBuf:    newBuffer(reactor.config.BufferChunkSize, reactor.config.BufferMaxSize),
	}
	c.connected.Store(true)
	c.writable.Store(true)
	c.lastSend.Store(time.Now().UnixNano())

	return c
}

// Fd returns the underlying file descriptor, for diagnostics and logging.
func (c *Connection) Fd() int {
	return c.fd
}

// RemoteAddr returns the peer address captured at accept time.
func (c *Connection) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// IsConnected reports whether the Connection is still open. Lock-free.
func (c *Connection) IsConnected() bool {
	return c.connected.Load()
}

// Close is idempotent and safe from any goroutine. It only closes the
// descriptor; unregistering from the Reactor and Endpoint happens on the
// Reactor's next local-close sweep.
func (c *Connection) Close() {
	if !c.connected.CompareAndSwap(true, false) {
		return
	}

	_ = unix.Close(c.fd)
}

// ReadString scans the receive buffer for delimiter and, if found, returns
// the bytes preceding it (the delimiter itself is discarded) with
// keepReading=true, signalling the caller to loop. If the buffer holds no
// complete message it returns an empty string with keepReading=false.
func (c *Connection) ReadString(delimiter string) (msg string, keepReading bool) {
	delim := []byte(delimiter)

	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.recvBuf.Len() < len(delim) {
		return "", false
	}

	idx := c.recvBuf.FindDelimiter(delim)
	if idx < 0 {
		return "", false
	}

	out := make([]byte, idx)
	copy(out, c.recvBuf.Bytes()[:idx])
	c.recvBuf.Consume(idx + len(delim))

	return string(out), true
}

// ReadBytes returns a copy of exactly n bytes from the receive buffer, or
// (nil, false) if fewer than n bytes are currently buffered. There is no
// partial-read path.
func (c *Connection) ReadBytes(n int) ([]byte, bool) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.recvBuf.Len() < n {
		return nil, false
	}

	out := make([]byte, n)
	copy(out, c.recvBuf.Bytes()[:n])
	c.recvBuf.Consume(n)

	return out, true
}

// Enqueue appends p to the send buffer and wakes the sender if the
// Connection is currently writable. Silently dropped if the Connection is
// already closed. A buffer overflow closes the Connection.
func (c *Connection) Enqueue(p []byte) {
	if !c.IsConnected() {
		return
	}

	c.sendMu.Lock()
	err := c.sendBuf.Append(p)
	c.sendMu.Unlock()

	if err != nil {
		c.reactor.logger.Warn().Int("fd", c.fd).Msg("send buffer overflow, closing connection")
		c.Close()

		return
	}

	if c.writable.Load() {
		c.reactor.wakeSender()
	}
}

// tryRecv drains as much as is currently available from the socket into
// the receive buffer, in MTU-sized reads, stopping on EAGAIN/EINTR. It
// returns true if the Connection is still open after draining, in which
// case the caller should invoke the process callback.
func (c *Connection) tryRecv() bool {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	scratch := make([]byte, c.reactor.config.SendSegmentSize)

	for {
		n, err := unix.Read(c.fd, scratch)
		switch {
		case n > 0:
			if appendErr := c.recvBuf.Append(scratch[:n]); appendErr != nil {
				c.recvMu.Unlock()
				c.reactor.logger.Warn().Int("fd", c.fd).Msg("receive buffer overflow, closing connection")
				c.Close()
				c.recvMu.Lock()

				return false
			}

			if n < len(scratch) {
				return true
			}
		case n == 0:
			c.recvMu.Unlock()
			c.Close()
			c.recvMu.Lock()

			return false
		default:
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return true
			}

			c.recvMu.Unlock()
			c.Close()
			c.recvMu.Lock()

			return false
		}
	}
}

// setWritable marks the Connection writable after an EPOLLOUT event.
func (c *Connection) setWritable() {
	c.writable.Store(true)
}

// needsSend reports whether the sender should include this Connection in
// its working set. It also enforces the stalled-writer protection: a
// Connection that is unwritable with pending bytes and whose last
// successful send is at least stallTimeout ago is closed.
func (c *Connection) needsSend() bool {
	if !c.IsConnected() {
		return false
	}

	c.sendMu.Lock()
	pending := c.sendBuf.Len() > 0
	c.sendMu.Unlock()

	if !c.writable.Load() {
		if pending {
			last := time.Unix(0, c.lastSend.Load())
			if time.Since(last) >= stallTimeout {
				c.reactor.logger.Warn().Int("fd", c.fd).Msg("stalled writer, closing connection")
				c.Close()
			}
		}

		return false
	}

	return pending
}

// trySend writes up to one segment of pending bytes non-blocking. Returns
// the number of bytes written, -1 if nothing could be written this call
// (either the buffer was empty or the socket returned EAGAIN/EINTR), or 0
// if the write failed and the Connection was closed.
func (c *Connection) trySend() int {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendBuf.Len() == 0 {
		return -1
	}

	segment := c.sendBuf.Len()
	if segment > c.reactor.config.SendSegmentSize {
		segment = c.reactor.config.SendSegmentSize
	}

	n, err := unix.Write(c.fd, c.sendBuf.Bytes()[:segment])
	switch {
	case n > 0:
		c.lastSend.Store(time.Now().UnixNano())
		c.sendBuf.Consume(n)

		return n
	case n == 0:
		c.sendMu.Unlock()
		c.Close()
		c.sendMu.Lock()

		return 0
	default:
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			c.writable.Store(false)

			return -1
		}

		c.sendMu.Unlock()
		c.Close()
		c.sendMu.Lock()

		return 0
	}
}
