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

// Package plugstate defines the plugin-wide configuration (Config) and its
// loading (BuildConfig). The open lockspace handle is not kept here; it is a
// field of plugin.Plugin.
package plugstate

import (
	"encoding/json"
	"fmt"

	"github.com/solarisdb/dlmguard/golibs/cast"
	"github.com/solarisdb/dlmguard/golibs/config"
	"github.com/solarisdb/dlmguard/golibs/logging"
)

// Config is the plugin-wide configuration, loaded once at Init time from the
// config file named by config_path. The booleans are pointers so that an
// explicit `false` in the file is distinguishable from an absent key; the
// defaults are resolved in BuildConfig after all overlays are applied.
type Config struct {
	// AutoDiskLeases: if true, disks get implicit leases; if false, only explicit
	// leases. Defaults to true.
	AutoDiskLeases *bool `json:"auto_disk_leases"`
	// RequireLeaseForDisks: if true, refuse to acquire for a VM with RW disks and
	// no leases. Defaults to !AutoDiskLeases.
	RequireLeaseForDisks *bool `json:"require_lease_for_disks"`
	// PurgeLockspace: run node-wide orphan purge during recovery. Defaults to true.
	PurgeLockspace *bool `json:"purge_lockspace"`
	// LockspaceName is the DLM lockspace identifier.
	LockspaceName string `json:"lockspace_name"`
	// LockRecordFilePath is the path to the Record File.
	LockRecordFilePath string `json:"lock_record_file_path"`
	// AdminListenAddr is the read-only admin gRPC surface's listen
	// address (internal/adminsvc): health-check only, never a lock/unlock RPC.
	AdminListenAddr string `json:"admin_listen_addr"`
	// AuditDBFilePath is the embedded audit trail's buntdb file path
	// (internal/auditlog); empty means in-memory only.
	AuditDBFilePath string `json:"audit_db_file_path"`
}

func defaultConfig() Config {
	return Config{
		LockspaceName:      "libvirt",
		LockRecordFilePath: "/tmp/libvirtd-dlm-file",
		AdminListenAddr:    "127.0.0.1:7887",
		AuditDBFilePath:    "",
	}
}

// BuildConfig loads Config from cfgPath (JSON or YAML by extension), overlaying
// defaults and then DLMGUARD_*-prefixed environment variables.
func BuildConfig(cfgPath string) (*Config, error) {
	log := logging.NewLogger("plugstate.ConfigBuilder")
	log.Infof("building config, cfgPath=%s", cfgPath)

	e := config.NewEnricher(defaultConfig())
	fe := config.NewEnricher(Config{})
	if err := fe.LoadFromFile(cfgPath); err != nil {
		return nil, fmt.Errorf("could not read config file %s: %w", cfgPath, err)
	}
	_ = e.ApplyOther(fe)
	_ = e.ApplyEnvVariables("DLMGUARD", "_")

	cfg := e.Value()
	// resolve boolean defaults only after every overlay had its say:
	// require_lease_for_disks defaults to the negation of auto_disk_leases.
	if cfg.AutoDiskLeases == nil {
		cfg.AutoDiskLeases = cast.BoolPtr(true)
	}
	if cfg.RequireLeaseForDisks == nil {
		cfg.RequireLeaseForDisks = cast.BoolPtr(!*cfg.AutoDiskLeases)
	}
	if cfg.PurgeLockspace == nil {
		cfg.PurgeLockspace = cast.BoolPtr(true)
	}
	return &cfg, nil
}

func (c Config) String() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}
