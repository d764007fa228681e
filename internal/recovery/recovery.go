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

// Package recovery implements the startup recovery engine: it scans the
// Record File, adopts orphans through the DLM Adapter, optionally purges the rest
// of this node's orphans, and rewrites the Record File from the resulting Registry.
package recovery

import (
	"context"
	"fmt"
	"os"

	"github.com/solarisdb/dlmguard/golibs/errors"
	"github.com/solarisdb/dlmguard/golibs/logging"
	"github.com/solarisdb/dlmguard/internal/auditlog"
	"github.com/solarisdb/dlmguard/internal/cpg"
	"github.com/solarisdb/dlmguard/internal/dlm"
	"github.com/solarisdb/dlmguard/internal/recordfile"
	"github.com/solarisdb/dlmguard/internal/registry"
)

// Config carries what Run needs to know about this node's policy and paths,
// mirroring the configuration keys this engine consumes.
type Config struct {
	PurgeLockspace     bool
	LockRecordFilePath string
	// TimestampUTC stamps every audit entry this run produces. It is supplied by
	// the caller rather than computed internally so that a recovery replay stays
	// deterministic in tests.
	TimestampUTC int64
}

var log = logging.NewLogger("recovery.Engine")

// Run executes the recovery pass. lockspaceCreated is OpenOrCreateLockspace's
// second return value; when true, recovery skips scan/adopt/purge entirely and
// just writes an empty Record File, since a freshly created lockspace has never
// held locks on this node. audit may be nil, in which case decisions are only
// logged, not persisted.
func Run(ctx context.Context, adapter dlm.Adapter, handle dlm.Handle, lockspaceCreated bool,
	cpgAdapter cpg.Adapter, cfg Config, audit *auditlog.Log) (*registry.Registry, error) {

	reg := registry.New(nil)

	if lockspaceCreated {
		log.Infof("lockspace freshly created; skipping scan/adopt/purge")
		f, err := recordfile.Initialize(cfg.LockRecordFilePath, nil)
		if err != nil {
			return nil, fmt.Errorf("could not initialize fresh record file: %w", err)
		}
		reg.SetFile(f)
		return reg, nil
	}

	if _, err := os.Stat(cfg.LockRecordFilePath); err == nil {
		if err := scanAndAdopt(ctx, adapter, handle, cfg.LockRecordFilePath, reg, cfg.TimestampUTC, audit); err != nil {
			return nil, err
		}
	}

	if cfg.PurgeLockspace {
		if err := purge(ctx, adapter, handle, cpgAdapter, cfg.TimestampUTC, audit); err != nil {
			return nil, err
		}
	}

	f, err := recordfile.Initialize(cfg.LockRecordFilePath, snapshotToSlots(reg))
	if err != nil {
		return nil, fmt.Errorf("could not rewrite record file after recovery: %w", err)
	}
	reg.SetFile(f)
	return reg, nil
}

func scanAndAdopt(ctx context.Context, adapter dlm.Adapter, handle dlm.Handle, path string,
	reg *registry.Registry, ts int64, audit *auditlog.Log) error {

	rf, err := recordfile.Open(path)
	if err != nil {
		return fmt.Errorf("could not open record file for recovery scan: %w", err)
	}
	defer rf.Close()

	it, err := rf.Scan()
	if err != nil {
		return fmt.Errorf("could not scan record file: %w", err)
	}
	defer it.Close()

	for it.HasNext() {
		pl, ok := it.Next()
		if !ok {
			break
		}

		id, err := adapter.Adopt(ctx, handle, pl.Mode, pl.Name, dlm.FlagPersistent|dlm.FlagOrphan)
		switch {
		case err == nil:
			if _, ierr := reg.Insert(pl.Name, pl.Mode, id, pl.PID); ierr != nil {
				log.Errorf("adopted %s but could not insert into registry: %s", pl.Name, ierr)
				continue
			}
			recordDecision(audit, ts, auditlog.DecisionAdopted, pl.Name, uint32(id), "")
		case errors.Is(err, dlm.ErrIncompatibleOrphan):
			log.Warnf("recovery: dropping %s, incompatible orphan exists (EAGAIN)", pl.Name)
			recordDecision(audit, ts, auditlog.DecisionDroppedEAGAIN, pl.Name, 0, err.Error())
		case errors.Is(err, dlm.ErrNoOrphan):
			log.Warnf("recovery: dropping %s, no orphan to adopt (ENOENT)", pl.Name)
			recordDecision(audit, ts, auditlog.DecisionDroppedENOENT, pl.Name, 0, err.Error())
		default:
			// Any other failure is logged and dropped too: a stale file entry for a
			// lock the kernel has already reaped must not wedge the plugin.
			log.Errorf("recovery: dropping %s, adopt failed: %s", pl.Name, err)
			recordDecision(audit, ts, auditlog.DecisionDroppedOther, pl.Name, 0, err.Error())
		}
	}
	return nil
}

func purge(ctx context.Context, adapter dlm.Adapter, handle dlm.Handle, cpgAdapter cpg.Adapter, ts int64, audit *auditlog.Log) error {
	nodeID, err := cpgAdapter.LocalNodeID(ctx)
	if err != nil {
		return fmt.Errorf("could not query local node id for purge: %w", err)
	}
	if err := adapter.Purge(ctx, handle, nodeID, 0); err != nil {
		return fmt.Errorf("dlm purge(node=%d) failed: %w", nodeID, err)
	}
	recordDecision(audit, ts, auditlog.DecisionPurged, "", 0, fmt.Sprintf("node=%d", nodeID))
	return nil
}

func recordDecision(audit *auditlog.Log, ts int64, d auditlog.Decision, name string, id uint32, detail string) {
	if audit == nil {
		return
	}
	if err := audit.Record(auditlog.Entry{
		TimestampUTC: ts,
		Decision:     d,
		ResourceName: name,
		KernelLockID: id,
		Detail:       detail,
	}); err != nil {
		log.Warnf("could not persist audit entry: %s", err)
	}
}

func snapshotToSlots(reg *registry.Registry) []recordfile.Slot {
	snap := reg.Snapshot()
	slots := make([]recordfile.Slot, len(snap))
	for i, r := range snap {
		slots[i] = recordfile.Slot{
			KernelLockID: r.KernelLockID,
			Name:         r.Name,
			Mode:         r.Mode,
			PID:          r.OwnerPID,
			Status:       recordfile.StatusHeld,
		}
	}
	return slots
}
