// Copyright 2023 The acquirecloud Authors
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
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrExist indicates that an object already exists
	ErrExist = errors.New("already exists")
	// ErrNotExist indicates that the requested object could not be found
	ErrNotExist = errors.New("not found")
	// ErrInvalid indicates an invalid argument or state
	ErrInvalid = errors.New("invalid argument")
	// ErrNotAuthorized indicates the caller lacks the privileges for the operation
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInternal indicates an unexpected internal condition
	ErrInternal = errors.New("internal error")
	// ErrDataLoss indicates irrecoverable data loss or corruption
	ErrDataLoss = errors.New("data loss")
	// ErrExhausted indicates a resource limit was reached
	ErrExhausted = errors.New("resource exhausted")
	// ErrUnimplemented indicates the operation is not implemented
	ErrUnimplemented = errors.New("not implemented")
	// ErrConflict indicates a conflicting concurrent operation or state
	ErrConflict = errors.New("conflict")
	// ErrCanceled indicates the operation was canceled
	ErrCanceled = errors.New("canceled")
	// ErrClosed indicates the object is closed and can no longer be used
	ErrClosed = errors.New("closed")
	// ErrCommunication indicates a transport-level failure talking to a remote peer
	ErrCommunication = errors.New("communication error")
)

// jsonErrorMarker delimits a JSON-encoded object embedded in an error's message by EmbedObject
const jsonErrorMarker = "\x00#\x00"

// Is reports whether err matches target, the same way as errors.Is, but it additionally
// unwraps gRPC status errors via FromGRPCError first, so remote errors compare equal to
// their local sentinel counterparts.
func Is(err, target error) bool {
	if errors.Is(err, target) {
		return true
	}
	code := status.Code(err)
	if code == codes.OK || code == codes.Unknown {
		return false
	}
	return FromGRPCError(err) == target
}

// EmbedObject marshals obj to JSON and embeds it into err's message, so that a later
// ExtractObject call against the returned error can recover obj. err must be non-nil and
// must not already carry an embedded object.
func EmbedObject(obj any, err error) error {
	if err == nil {
		panic("errors.EmbedObject: err must not be nil")
	}
	if obj == nil {
		panic("errors.EmbedObject: obj must not be nil")
	}
	if strings.Contains(err.Error(), jsonErrorMarker) {
		panic("errors.EmbedObject: err already carries an embedded object")
	}
	buf, mErr := json.Marshal(obj)
	if mErr != nil {
		panic(fmt.Sprintf("errors.EmbedObject: could not marshal object: %v", mErr))
	}
	return fmt.Errorf("%w: %s%s%s", err, jsonErrorMarker, buf, jsonErrorMarker)
}

// ExtractObject recovers an object embedded by EmbedObject into err's message, unmarshaling
// it into ptr. It returns false if err is nil or carries no (well-formed) embedded object.
func ExtractObject(err error, ptr any) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	first := strings.Index(msg, jsonErrorMarker)
	if first < 0 {
		return false
	}
	rest := msg[first+len(jsonErrorMarker):]
	second := strings.Index(rest, jsonErrorMarker)
	if second < 0 {
		return false
	}
	return json.Unmarshal([]byte(rest[:second]), ptr) == nil
}
