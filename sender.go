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

import "time"

const (
	senderPerConnQuota = 10
	senderWakeTimeout  = time.Millisecond
)

// sendLoop is the Sender thread: it maintains a working set of Connections
// known to need sending, refreshed from the registry whenever it runs dry,
// and drains each Connection in the working set under a fair per-pass
// write quota.
//
// The source holds the registry mutex across the condition-variable wait
// while idle; Go's sync.Mutex has no timed wait, so idling here is a
// buffered wake channel plus a short timer instead, and the mutex is never
// held across the wait itself — the refresh step re-takes it on every
// retry, which is sufficient since nothing but the refresh reads the
// registry from this goroutine.
func (r *Reactor) sendLoop() {
	defer r.closeWg.Done()

	working := make(map[int]*Connection)

	for {
		r.refreshWorkingSet(working)

		if len(working) == 0 {
			if !r.open.Load() {
				return
			}

			select {
			case <-r.senderWake:
			case <-time.After(senderWakeTimeout):
			}

			if !r.open.Load() {
				return
			}

			continue
		}

		r.drainPass(working)

		if !r.open.Load() && len(working) == 0 {
			return
		}
	}
}

func (r *Reactor) refreshWorkingSet(working map[int]*Connection) {
	r.registryMu.Lock()
	defer r.registryMu.Unlock()

	for _, entry := range r.registry {
		if entry.kind != registryKindConnection {
			continue
		}

		if _, already := working[entry.conn.fd]; already {
			continue
		}

		if entry.conn.needsSend() {
			working[entry.conn.fd] = entry.conn
		}
	}
}

// drainPass calls TrySend repeatedly on each working Connection up to the
// fair-share quota, stopping early once a call makes no progress. Every
// Connection is removed from the working set after its turn; one that still
// needs sending is re-added by the next refresh.
func (r *Reactor) drainPass(working map[int]*Connection) {
	done := make([]int, 0, len(working))

	for fd, c := range working {
		for i := 0; i < senderPerConnQuota; i++ {
			if c.trySend() <= 0 {
				break
			}
		}

		done = append(done, fd)
	}

	for _, fd := range done {
		delete(working, fd)
	}
}
