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

//go:build !linux || !cgo

package dlm

// NewDefault returns the in-memory Fake Adapter on platforms without a kernel DLM
// binding (anything but linux+cgo), so the plugin still builds and runs its tests.
func NewDefault(localNodeID uint32) Adapter {
	return NewFake(localNodeID)
}
