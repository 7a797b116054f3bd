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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	errs "github.com/jandudek/reactor/pkg/errors"
)

func TestBufferAppendAndConsume(t *testing.T) {
	b := newBuffer(16, 64)

	require.NoError(t, b.Append([]byte("hello")))
	require.Equal(t, 5, b.Len())
	require.Equal(t, "hello", string(b.Bytes()))

	require.NoError(t, b.Append([]byte(" world")))
	require.Equal(t, "hello world", string(b.Bytes()))

	b.Consume(6)
	require.Equal(t, "world", string(b.Bytes()))
}

func TestBufferGrowsToChunkMultiple(t *testing.T) {
	b := newBuffer(16, 1024)

	require.NoError(t, b.Append(bytes.Repeat([]byte("a"), 20)))
	require.Len(t, b.data, 32)
	require.Equal(t, 20, b.Len())
}

func TestBufferOverflow(t *testing.T) {
	b := newBuffer(16, 32)

	err := b.Append(bytes.Repeat([]byte("a"), 33))
	require.ErrorIs(t, err, errs.ErrBufferOverflow)
	require.Equal(t, 0, b.Len())
}

func TestBufferConsumeAll(t *testing.T) {
	b := newBuffer(16, 64)

	require.NoError(t, b.Append([]byte("hello")))
	b.Consume(100)
	require.Equal(t, 0, b.Len())
}

func TestBufferFindDelimiter(t *testing.T) {
	b := newBuffer(16, 64)
	require.NoError(t, b.Append([]byte("a\r\nb\r\nc\r\n")))

	idx := b.FindDelimiter([]byte("\r\n"))
	require.Equal(t, 1, idx)

	idx = b.FindDelimiter([]byte("nope"))
	require.Equal(t, -1, idx)
}
