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
	errs "github.com/jandudek/reactor/pkg/errors"
)

const (
	defaultBufferChunk  = 16 * 1024
	defaultBufferMax    = 1024 * 1024
	defaultSegmentBytes = 1500
)

// buffer is a contiguous growable byte region backing one direction of a
// Connection. It grows in whole chunks up to a hard maximum and never
// reallocates on Consume; bytes are shifted forward in place instead.
type buffer struct {
	data  []byte
	size  int
	chunk int
	max   int
}

func newBuffer(chunk, max int) *buffer {
	if chunk <= 0 {
		chunk = defaultBufferChunk
	}
	if max <= 0 {
		max = defaultBufferMax
	}

	return &buffer{
		data:  make([]byte, chunk),
		chunk: chunk,
		max:   max,
	}
}

// Append copies p onto the end of the buffer, growing the backing array to
// the smallest multiple of chunk that fits, or fails with ErrBufferOverflow
// if the buffer would have to grow past max.
func (b *buffer) Append(p []byte) error {
	needed := b.size + len(p)
	if needed > b.max {
		return errs.ErrBufferOverflow
	}

	if needed > len(b.data) {
		newLen := ((needed + b.chunk - 1) / b.chunk) * b.chunk
		if newLen > b.max {
			newLen = b.max
		}

		grown := make([]byte, newLen)
		copy(grown, b.data[:b.size])
		b.data = grown
	}

	copy(b.data[b.size:needed], p)
	b.size = needed

	return nil
}

// Consume discards the first n bytes, shifting the remainder to offset 0.
// n must not exceed the current size.
func (b *buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= b.size {
		b.size = 0

		return
	}

	copy(b.data[0:], b.data[n:b.size])
	b.size -= n
}

// FindDelimiter returns the offset of the first occurrence of delim within
// the valid region, or -1 if it is not present.
func (b *buffer) FindDelimiter(delim []byte) int {
	if len(delim) == 0 || b.size < len(delim) {
		return -1
	}

	for i := 0; i+len(delim) <= b.size; i++ {
		if string(b.data[i:i+len(delim)]) == string(delim) {
			return i
		}
	}

	return -1
}

// Bytes returns the valid region. The caller must not retain it past the
// next mutating call.
func (b *buffer) Bytes() []byte {
	return b.data[:b.size]
}

// Len returns the number of valid bytes currently buffered.
func (b *buffer) Len() int {
	return b.size
}
