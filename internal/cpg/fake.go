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
package cpg

import "context"

// Fake returns a fixed local node id, for tests and non-cluster development.
type Fake struct {
	NodeID uint32
}

var _ Adapter = (*Fake)(nil)

func (f *Fake) LocalNodeID(context.Context) (uint32, error) { return f.NodeID, nil }
