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

package cpg

// #cgo LDFLAGS: -lcpg
// #include <corosync/cpg.h>
import "C"

import (
	"context"
	"fmt"

	"github.com/solarisdb/dlmguard/golibs/errors"
)

// Real binds directly to corosync's libcpg, following the
// cpg_model_initialize/cpg_local_get/cpg_finalize scoped-acquisition sequence.
type Real struct{}

var _ Adapter = (*Real)(nil)

func NewReal() *Real { return &Real{} }

func (r *Real) LocalNodeID(ctx context.Context) (uint32, error) {
	var handle C.cpg_handle_t
	if C.cpg_model_initialize(&handle, C.CPG_MODEL_V1, nil, nil) != C.CS_OK {
		return 0, fmt.Errorf("cpg_model_initialize: %w", errors.ErrInternal)
	}
	defer C.cpg_finalize(handle)

	var nodeID C.uint32_t
	if C.cpg_local_get(handle, &nodeID) != C.CS_OK {
		return 0, fmt.Errorf("cpg_local_get: %w", errors.ErrInternal)
	}
	return uint32(nodeID), nil
}
