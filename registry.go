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

// registryKind tags a registryEntry with which of its two pointer fields
// is meaningful, replacing the source's inheritance-based Container tag
// with a small Go sum type matched by comparing kind.
type registryKind int

const (
	registryKindListener registryKind = iota
	registryKindConnection
)

// registryEntry is a tagged value stored in the Reactor's fd-keyed map: a
// descriptor is either an Endpoint's listening socket or a Connection's
// socket, never both.
type registryEntry struct {
	kind registryKind
	conn *Connection
	ep   *Endpoint
}
