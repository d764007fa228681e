// Package auditlog persists one row per Recovery Engine decision (adopt, drop on
// EAGAIN/ENOENT/other, purge) for post-mortem diagnosis. It is purely additive
// diagnostics: the recovery algorithm itself never reads it back.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solarisdb/dlmguard/golibs/cast"
	"github.com/solarisdb/dlmguard/golibs/logging"
	"github.com/solarisdb/dlmguard/golibs/ulidutils"
	"github.com/tidwall/buntdb"
)

// Decision enumerates the recovery outcomes worth recording.
type Decision string

const (
	DecisionAdopted       Decision = "adopted"
	DecisionDroppedEAGAIN Decision = "dropped_eagain"
	DecisionDroppedENOENT Decision = "dropped_enoent"
	DecisionDroppedOther  Decision = "dropped_other"
	DecisionPurged        Decision = "purged"
)

// Entry is one audited recovery decision. Timestamp is supplied by the caller
// rather than computed here, so replaying a recovery run in a test is deterministic.
type Entry struct {
	ID           string   `json:"id"`
	TimestampUTC int64    `json:"timestampUTC"`
	Decision     Decision `json:"decision"`
	ResourceName string   `json:"resourceName"`
	KernelLockID uint32   `json:"kernelLockID,omitempty"`
	Detail       string   `json:"detail,omitempty"`
}

// Config controls where the audit trail is stored.
type Config struct {
	// DBFilePath is the path to the buntdb file; empty means in-memory, which is
	// the right default for a process whose own crash is exactly the scenario the
	// next recovery run will need to explain without relying on this log surviving.
	DBFilePath string
}

// Log is the embedded append-only audit trail, implementing the linker
// Init(ctx)/Shutdown() lifecycle the rest of this module's singletons use.
type Log struct {
	cfg    *Config
	db     *buntdb.DB
	logger logging.Logger
}

// New creates a Log that Init must still open.
func New(cfg Config) *Log {
	return &Log{cfg: &cfg}
}

// Init implements linker.Initializer.
func (l *Log) Init(ctx context.Context) error {
	path := l.cfg.DBFilePath
	if len(path) == 0 {
		path = ":memory:"
	}

	l.logger = logging.NewLogger("auditlog.Log")
	l.logger.Infof("initializing with dbFilePath=%s", path)

	var err error
	l.db, err = buntdb.Open(path)
	if err != nil {
		return fmt.Errorf("buntdb.Open(%s) failed: %w", path, err)
	}
	return nil
}

// Shutdown implements linker.Shutdowner.
func (l *Log) Shutdown() {
	if l.logger != nil {
		l.logger.Infof("shutting down...")
	}
	if l.db != nil {
		_ = l.db.Close()
	}
}

// Record appends one audit entry. e.TimestampUTC is a caller-supplied Unix-UTC
// timestamp so that recovery replay in tests stays deterministic.
func (l *Log) Record(e Entry) error {
	e.ID = ulidutils.NewID()
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	tx, err := l.db.Begin(true)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	key := fmt.Sprintf("/recovery/%020d/%s", e.TimestampUTC, e.ID)
	if _, _, err := tx.Set(key, cast.ByteArrayToString(val), nil); err != nil {
		return fmt.Errorf("tx.Set(%s) failed: %w", key, err)
	}
	return tx.Commit()
}

// List returns every recorded entry in ascending (timestamp, id) order.
func (l *Log) List() ([]Entry, error) {
	tx, err := l.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var out []Entry
	var iterErr error
	err = tx.AscendKeys("/recovery/*", func(key, val string) bool {
		var e Entry
		if jerr := json.Unmarshal(cast.StringToByteArray(val), &e); jerr != nil {
			iterErr = jerr
			return false
		}
		out = append(out, e)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("iteration failed: %w", err)
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}
