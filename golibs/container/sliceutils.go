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
package container

// IndexOf returns the position of v in slice and -1 if the v is not in slice.
func IndexOf[V comparable](slice []V, v V) int {
	if len(slice) == 0 {
		return -1
	}
	for idx, v1 := range slice {
		if v == v1 {
			return idx
		}
	}
	return -1
}

// IndexOfAny returns the position of v in slice and -1 if the v is not in slice.
func IndexOfAny[V any](slice []V, v V, equalF func(v1, v2 V) bool) int {
	if len(slice) == 0 {
		return -1
	}
	for idx, v1 := range slice {
		if equalF(v, v1) {
			return idx
		}
	}
	return -1
}

// SliceReverse the slice in place and returns the slice itself
func SliceReverse[V any](slice []V) []V {
	s, e := 0, len(slice)-1
	for s < e {
		slice[s], slice[e] = slice[e], slice[s]
		s++
		e--
	}
	return slice
}
