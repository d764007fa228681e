// Copyright 2023 The acquirecloud Authors
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

package files

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/solarisdb/dlmguard/golibs/errors"
)

type (
	// MMFile is a memory mapped file that can be grown on demand.
	//
	// NOTE: the object is Read-Write go-routine safe. It means that the methods Read and
	// Write could be called for not overlapping bytes regions from different go-routines
	// at the same time, but no other methods for the object calls are allowed.
	MMFile struct {
		fn   string
		f    *os.File
		mf   mmap.MMap
		size int64
	}
)

const BlockSize = 4096

// NewMMFile opens an existing file and maps a region with at least the minSize into memory.
// If minSize is negative, the existing file size is used. If the file is smaller than
// minSize, it is extended first.
func NewMMFile(fname string, minSize int64) (*MMFile, error) {
	fi, err := os.Stat(fname)
	if err != nil {
		return nil, err
	}
	return openMMFile(fname, fi.Size(), minSize)
}

// CreateMMFile creates fname (truncating it if it already exists) and maps a region of
// at least minSize into memory. Unlike NewMMFile it never requires the file to pre-exist,
// which is what a brand-new Record File needs on its first write.
func CreateMMFile(fname string, minSize int64) (*MMFile, error) {
	f, err := os.OpenFile(fname, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not create file %s: %w", fname, err)
	}
	f.Close()
	return openMMFile(fname, 0, minSize)
}

func openMMFile(fname string, curSize, minSize int64) (*MMFile, error) {
	if minSize < 0 {
		minSize = curSize
	}
	if err := checkSize(minSize); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(fname, os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", fname, err)
	}
	var openErr error
	defer func() {
		if openErr != nil {
			f.Close()
		}
	}()

	if curSize < minSize {
		if openErr = f.Truncate(minSize); openErr != nil {
			return nil, fmt.Errorf("could not extend file %s size to %d: %w", fname, minSize, openErr)
		}
	} else {
		minSize = curSize
	}

	mf, err := mmap.MapRegion(f, int(minSize), mmap.RDWR, 0, 0)
	if err != nil {
		openErr = err
		return nil, fmt.Errorf("could not map file %s to memory: %w", fname, err)
	}

	mmf := new(MMFile)
	mmf.fn = fname
	mmf.f = f
	mmf.mf = mf
	mmf.size = minSize
	return mmf, nil
}

// Close closes the mapped file
func (mmf *MMFile) Close() error {
	var err error
	if mmf.f != nil {
		mmf.unmap()
		err = mmf.f.Close()
		mmf.f = nil
		mmf.size = -1
	}
	return err
}

// Size returns the size of the mapped region
func (mmf *MMFile) Size() int64 {
	return mmf.size
}

// Grow increases the mapped region to newSize, which must be a BlockSize-aligned
// value greater than the current size.
func (mmf *MMFile) Grow(newSize int64) (err error) {
	if mmf.size == newSize {
		return nil
	}
	if mmf.size > newSize {
		return fmt.Errorf("expecting new size %d to be more than the existing one=%d: %w", newSize, mmf.size, errors.ErrInvalid)
	}
	if err := checkSize(newSize); err != nil {
		return err
	}

	mmf.unmap()

	if err = mmf.f.Truncate(newSize); err != nil {
		mmf.Close()
		return fmt.Errorf("could not extend file size to %d: %w", newSize, err)
	}

	mmf.mf, err = mmap.MapRegion(mmf.f, int(newSize), mmap.RDWR, 0, 0)
	if err != nil {
		mmf.Close()
		return err
	}
	mmf.size = newSize
	return nil
}

// Buffer returns a slice of the mapped memory to be read and written directly.
func (mmf *MMFile) Buffer(offs int64, size int) ([]byte, error) {
	if offs < 0 || offs >= mmf.size {
		return nil, fmt.Errorf("offset=%d out of bounds [0..%d]: %w", offs, mmf.size-1, errors.ErrInvalid)
	}
	idx := int(offs)
	if idx+size >= int(mmf.size) {
		size = int(mmf.size - offs)
	}
	return mmf.mf[idx : idx+size], nil
}

// Sync flushes dirty pages of the mapped region to disk.
func (mmf *MMFile) Sync() error {
	if mmf.mf == nil {
		return nil
	}
	return mmf.mf.Flush()
}

// Fd returns the descriptor of the underlying file, for callers that need a
// data-only sync (e.g. unix.Fdatasync) instead of Sync's full mmap flush.
func (mmf *MMFile) Fd() uintptr {
	return mmf.f.Fd()
}

func (mmf *MMFile) String() string {
	if mmf.f != nil {
		return fmt.Sprintf("MMFile: {fn=%s, f=\"opened\", size=%d}", mmf.fn, mmf.size)
	}
	return fmt.Sprintf("MMFile{fn=%s, f=\"closed\", size=%d}", mmf.fn, mmf.size)
}

func (mmf *MMFile) unmap() {
	if mmf.mf == nil {
		return
	}
	mmf.mf.Unmap()
}

func checkSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("provided size must be positive, and the file should not be empty, but size=%d: %w", size, errors.ErrInvalid)
	}
	if size%int64(BlockSize) != 0 {
		return fmt.Errorf("size=%d must be a multiple of %d: %w", size, BlockSize, errors.ErrInvalid)
	}
	return nil
}
