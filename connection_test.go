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
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestConnection(t *testing.T) *Connection {
	t.Helper()

	r, err := NewReactor()
	require.NoError(t, err)
	t.Cleanup(r.Close)

	return &Connection{
		fd:      -1,
		reactor: r,
		recvBuf: newBuffer(r.config.BufferChunkSize, r.config.BufferMaxSize),
		sendBuf: newBuffer(r.config.BufferChunkSize, r.config.BufferMaxSize),
	}
}

// TestReadBytesNeverFallsThrough is a regression test for the historical
// defect where ReadBytes could fall through a switch case without
// returning once enough bytes had been buffered.
func TestReadBytesNeverFallsThrough(t *testing.T) {
	c := newTestConnection(t)
	c.connected.Store(true)

	require.NoError(t, c.recvBuf.Append([]byte("hello")))

	got, ok := c.ReadBytes(5)
	require.True(t, ok)
	require.Equal(t, "hello", string(got))
	require.Equal(t, 0, c.recvBuf.Len())
}

func TestReadBytesInsufficientData(t *testing.T) {
	c := newTestConnection(t)
	c.connected.Store(true)

	require.NoError(t, c.recvBuf.Append([]byte("hi")))

	got, ok := c.ReadBytes(5)
	require.False(t, ok)
	require.Nil(t, got)
	require.Equal(t, 2, c.recvBuf.Len())
}

func TestReadStringSplitsOnDelimiter(t *testing.T) {
	c := newTestConnection(t)
	c.connected.Store(true)

	require.NoError(t, c.recvBuf.Append([]byte("m1\r\nm2\r\n")))

	msg, keepReading := c.ReadString("\r\n")
	require.True(t, keepReading)
	require.Equal(t, "m1", msg)

	msg, keepReading = c.ReadString("\r\n")
	require.True(t, keepReading)
	require.Equal(t, "m2", msg)

	msg, keepReading = c.ReadString("\r\n")
	require.False(t, keepReading)
	require.Empty(t, msg)
}

func TestEnqueueDroppedWhenNotConnected(t *testing.T) {
	c := newTestConnection(t)
	c.connected.Store(false)

	c.Enqueue([]byte("ignored"))
	require.Equal(t, 0, c.sendBuf.Len())
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newTestConnection(t)
	c.fd = -1
	c.connected.Store(true)

	c.Close()
	require.False(t, c.IsConnected())

	c.Close()
	require.False(t, c.IsConnected())
}
