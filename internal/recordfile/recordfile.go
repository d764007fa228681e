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

// Package recordfile implements the append-structured, fixed-width, slot-addressed
// Record File: one header line plus one 93-byte data line per DLM kernel lock
// id, memory-mapped so a single slot can be updated in place without rewriting
// neighbors.
package recordfile

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/solarisdb/dlmguard/golibs/container/iterable"
	"github.com/solarisdb/dlmguard/golibs/errors"
	"github.com/solarisdb/dlmguard/golibs/files"
	"github.com/solarisdb/dlmguard/golibs/logging"
	"github.com/solarisdb/dlmguard/internal/dlm"
	"golang.org/x/sys/unix"
)

const (
	statusWidth = 6
	nameWidth   = 64
	modeWidth   = 9
	pidWidth    = 10

	// RecordLen is the fixed width of header and data lines alike (6+1+64+1+9+1+10+1).
	RecordLen = statusWidth + 1 + nameWidth + 1 + modeWidth + 1 + pidWidth + 1
	// HeaderLen is the Record File header's width; it equals RecordLen because the
	// header is formatted with the same field widths as a data line.
	HeaderLen = RecordLen
)

var header = fmt.Sprintf("%-6s %-64s %-9s %-10s\n", "STATUS", "RESOURCE_NAME", "LOCK_MODE", "VM_PID")

// Status is the persisted state of a slot; only Held rows are live.
type Status int

const (
	StatusReleased Status = 0
	StatusHeld     Status = 1
)

// Slot is one data line of the Record File, addressed by KernelLockID.
type Slot struct {
	KernelLockID dlm.LockID
	Name         string
	Mode         dlm.Mode
	PID          uint32
	Status       Status
}

func offset(id dlm.LockID) int64 {
	return int64(HeaderLen) + int64(RecordLen)*int64(id)
}

func modeToken(m dlm.Mode) string {
	switch m {
	case dlm.ModeShared:
		return "PRMODE"
	case dlm.ModeExclusive:
		return "EXMODE"
	default:
		return "NLMODE"
	}
}

func tokenToMode(s string) (dlm.Mode, bool) {
	switch s {
	case "PRMODE":
		return dlm.ModeShared, true
	case "EXMODE":
		return dlm.ModeExclusive, true
	default:
		return dlm.ModeNull, false
	}
}

func formatLine(s Slot) string {
	return fmt.Sprintf("%6d %-64s %-9s %10d\n", s.Status, s.Name, modeToken(s.Mode), s.PID)
}

// File is the memory-mapped Record File. Callers are responsible for serializing
// writes with the Registry's file mutex; File itself only guards its own
// structural state (growing/closing the mapping).
type File struct {
	path string
	mmf  *files.MMFile
	mu   sync.Mutex
}

var log = logging.NewLogger("recordfile.File")

// Initialize truncates path, writes the header, appends one HELD line per slot, and
// fdatasyncs before returning.
func Initialize(path string, slots []Slot) (*File, error) {
	maxID := dlm.LockID(0)
	for _, s := range slots {
		if s.KernelLockID > maxID {
			maxID = s.KernelLockID
		}
	}
	size := alignToBlock(offset(maxID) + int64(RecordLen))

	mmf, err := files.CreateMMFile(path, size)
	if err != nil {
		return nil, fmt.Errorf("could not create record file %s: %w", path, err)
	}
	f := &File{path: path, mmf: mmf}

	buf, err := f.mmf.Buffer(0, len(header))
	if err != nil {
		f.mmf.Close()
		return nil, err
	}
	copy(buf, header)

	for _, s := range slots {
		s.Status = StatusHeld
		if err := f.writeLineLocked(s); err != nil {
			f.mmf.Close()
			return nil, err
		}
	}
	if err := f.sync(); err != nil {
		f.mmf.Close()
		return nil, err
	}
	return f, nil
}

// Open memory-maps an existing Record File for WriteLock/Scan use.
func Open(path string) (*File, error) {
	mmf, err := files.NewMMFile(path, -1)
	if err != nil {
		return nil, fmt.Errorf("could not open record file %s: %w", path, err)
	}
	return &File{path: path, mmf: mmf}, nil
}

// Close releases the memory mapping.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mmf.Close()
}

// WriteLock seeks to slot.KernelLockID's slot, writes the fixed-width line, and
// fdatasyncs before returning.
func (f *File) WriteLock(s Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	need := alignToBlock(offset(s.KernelLockID) + int64(RecordLen))
	if need > f.mmf.Size() {
		if err := f.mmf.Grow(need); err != nil {
			return fmt.Errorf("could not grow record file to fit slot %d: %w", s.KernelLockID, err)
		}
	}
	if err := f.writeLineLocked(s); err != nil {
		return err
	}
	return f.sync()
}

func (f *File) writeLineLocked(s Slot) error {
	line := formatLine(s)
	buf, err := f.mmf.Buffer(offset(s.KernelLockID), len(line))
	if err != nil {
		return fmt.Errorf("could not address slot %d: %w", s.KernelLockID, err)
	}
	if len(buf) != len(line) {
		return fmt.Errorf("slot %d truncated at end of mapping: %w", s.KernelLockID, errors.ErrInternal)
	}
	copy(buf, line)
	return nil
}

func (f *File) sync() error {
	if err := f.mmf.Sync(); err != nil {
		return err
	}
	return unix.Fdatasync(int(f.mmf.Fd()))
}

// ParsedLine is one slot Scan yielded after line-parse validation.
type ParsedLine struct {
	Slot
	Held bool // true iff Status == StatusHeld; RELEASED/malformed lines are dropped before reaching the caller
}

// Scan parses the Record File slot by slot, skipping the header, and returns only
// well-formed HELD lines — the adoption candidates recovery needs. Malformed or
// RELEASED lines are dropped silently.
func (f *File) Scan() (iterable.Iterator[ParsedLine], error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := (f.mmf.Size() - int64(HeaderLen)) / int64(RecordLen)
	var out []ParsedLine
	for i := int64(0); i < n; i++ {
		buf, err := f.mmf.Buffer(offset(dlm.LockID(i)), RecordLen)
		if err != nil {
			continue
		}
		pl, ok := parseLine(buf, dlm.LockID(i))
		if !ok || !pl.Held {
			continue
		}
		out = append(out, pl)
	}
	return newSliceIterator(out), nil
}

func parseLine(buf []byte, id dlm.LockID) (ParsedLine, bool) {
	fields := strings.Fields(string(buf))
	if len(fields) != 4 {
		return ParsedLine{}, false
	}
	statusN, err := strconv.Atoi(fields[0])
	if err != nil {
		return ParsedLine{}, false
	}
	mode, ok := tokenToMode(fields[2])
	if !ok {
		return ParsedLine{}, false
	}
	pid, err := strconv.Atoi(fields[3])
	if err != nil || pid <= 0 {
		return ParsedLine{}, false
	}

	status := Status(statusN)
	if status != StatusHeld && status != StatusReleased {
		return ParsedLine{}, false
	}
	return ParsedLine{
		Slot: Slot{
			KernelLockID: id,
			Name:         fields[1],
			Mode:         mode,
			PID:          uint32(pid),
			Status:       status,
		},
		Held: status == StatusHeld,
	}, true
}

func alignToBlock(n int64) int64 {
	if n <= 0 {
		return int64(files.BlockSize)
	}
	rem := n % int64(files.BlockSize)
	if rem == 0 {
		return n
	}
	return n + (int64(files.BlockSize) - rem)
}

type sliceIterator struct {
	items []ParsedLine
	pos   int
}

func newSliceIterator(items []ParsedLine) *sliceIterator {
	return &sliceIterator{items: items}
}

func (it *sliceIterator) HasNext() bool { return it.pos < len(it.items) }

func (it *sliceIterator) Next() (ParsedLine, bool) {
	if it.pos >= len(it.items) {
		return ParsedLine{}, false
	}
	v := it.items[it.pos]
	it.pos++
	return v, true
}

func (it *sliceIterator) Close() error { return nil }

var _ iterable.Iterator[ParsedLine] = (*sliceIterator)(nil)
