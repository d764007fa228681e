// Copyright 2026 The Dlmguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux && cgo

package dlm

// NewDefault returns the cgo-backed Adapter bound to the kernel DLM. localNodeID is
// unused here (Real queries the kernel directly) but kept in the signature so callers
// can swap Fake in without branching on build tags themselves.
func NewDefault(localNodeID uint32) Adapter {
	return NewReal()
}
