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

package reactor_test

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	reactor "github.com/jandudek/reactor"
)

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	return ln.Addr().(*net.TCPAddr).Port
}

func dial(t *testing.T, port int) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	require.NoError(t, err)

	return conn
}

func TestEchoEndpoint(t *testing.T) {
	r, err := reactor.NewReactor()
	require.NoError(t, err)
	defer r.Close()

	port := freePort(t)

	var wg sync.WaitGroup
	wg.Add(2)

	ep, err := r.NewEndpoint(port,
		func(c *reactor.Connection) {},
		func(c *reactor.Connection) {
			for {
				msg, keepReading := c.ReadString("\r\n")
				if !keepReading {
					return
				}

				c.Enqueue([]byte(msg))
				wg.Done()
			}
		},
		func(c *reactor.Connection) {},
	)
	require.NoError(t, err)
	defer ep.Close()

	conn := dial(t, port)
	defer conn.Close()

	_, err = conn.Write([]byte("hello\r\nworld\r\n"))
	require.NoError(t, err)

	wg.Wait()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 32)
	n, err := readFull(conn, buf, len("helloworld"))
	require.NoError(t, err)
	require.Equal(t, "helloworld", string(buf[:n]))
}

func TestFragmentedDelimiter(t *testing.T) {
	r, err := reactor.NewReactor()
	require.NoError(t, err)
	defer r.Close()

	port := freePort(t)

	var wg sync.WaitGroup
	wg.Add(1)

	ep, err := r.NewEndpoint(port,
		func(c *reactor.Connection) {},
		func(c *reactor.Connection) {
			msg, keepReading := c.ReadString("\r\n")
			if keepReading {
				require.Equal(t, "hello", msg)
				wg.Done()
			}
		},
		func(c *reactor.Connection) {},
	)
	require.NoError(t, err)
	defer ep.Close()

	conn := dial(t, port)
	defer conn.Close()

	_, err = conn.Write([]byte("hel"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, err = conn.Write([]byte("lo\r"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, err = conn.Write([]byte("\n"))
	require.NoError(t, err)

	wg.Wait()
}

func TestBatchedDelimiters(t *testing.T) {
	r, err := reactor.NewReactor()
	require.NoError(t, err)
	defer r.Close()

	port := freePort(t)

	var mu sync.Mutex
	var got []string

	var wg sync.WaitGroup
	wg.Add(3)

	ep, err := r.NewEndpoint(port,
		func(c *reactor.Connection) {},
		func(c *reactor.Connection) {
			for {
				msg, keepReading := c.ReadString("\r\n")
				if !keepReading {
					return
				}

				mu.Lock()
				got = append(got, msg)
				mu.Unlock()
				wg.Done()
			}
		},
		func(c *reactor.Connection) {},
	)
	require.NoError(t, err)
	defer ep.Close()

	conn := dial(t, port)
	defer conn.Close()

	_, err = conn.Write([]byte("a\r\nb\r\nc\r\n"))
	require.NoError(t, err)

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestOverflowClosesConnection(t *testing.T) {
	r, err := reactor.NewReactor()
	require.NoError(t, err)
	defer r.Close()

	port := freePort(t)

	var wg sync.WaitGroup
	wg.Add(1)

	ep, err := r.NewEndpoint(port,
		func(c *reactor.Connection) {},
		func(c *reactor.Connection) {},
		func(c *reactor.Connection) { wg.Done() },
	)
	require.NoError(t, err)
	defer ep.Close()

	conn := dial(t, port)
	defer conn.Close()

	chunk := bytes.Repeat([]byte("x"), 64*1024)
	for i := 0; i < 40; i++ {
		if _, err := conn.Write(chunk); err != nil {
			break
		}
	}

	wg.Wait()
}

func TestEndpointCloseCleansUpAllConnections(t *testing.T) {
	r, err := reactor.NewReactor()
	require.NoError(t, err)
	defer r.Close()

	port := freePort(t)

	const numConns = 20

	var wg sync.WaitGroup
	wg.Add(numConns)

	ep, err := r.NewEndpoint(port,
		func(c *reactor.Connection) {},
		func(c *reactor.Connection) {},
		func(c *reactor.Connection) { wg.Done() },
	)
	require.NoError(t, err)

	conns := make([]net.Conn, 0, numConns)
	for i := 0; i < numConns; i++ {
		conns = append(conns, dial(t, port))
	}

	time.Sleep(50 * time.Millisecond)
	ep.Close()

	wg.Wait()
	require.False(t, ep.IsOpen())

	for _, c := range conns {
		c.Close()
	}
}

func readFull(conn net.Conn, buf []byte, n int) (int, error) {
	read := 0
	for read < n {
		m, err := conn.Read(buf[read:])
		if err != nil {
			return read, err
		}

		read += m
	}

	return read, nil
}
