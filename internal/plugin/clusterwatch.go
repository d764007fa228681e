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
package plugin

import (
	"context"
	"os"
	"time"

	"github.com/solarisdb/dlmguard/golibs/chans"
	"github.com/solarisdb/dlmguard/golibs/logging"
	"github.com/solarisdb/dlmguard/golibs/timeout"
)

// clusterNamePath is dlm_controld's liveness probe: it exists only while the
// cluster's DLM daemon is configured.
const clusterNamePath = "/sys/kernel/config/dlm/cluster/cluster_name"

const defaultWatchInterval = 30 * time.Second

// clusterWatch periodically re-checks that dlm_controld is still alive after
// init, logging if the liveness probe path disappears. It is purely diagnostic:
// nothing in the recovery engine or session manager consults it, and it never
// drives lock lifetimes.
type clusterWatch struct {
	probePath string
	interval  time.Duration
	stopCh    chan struct{}
	fut       timeout.Future
	log       logging.Logger
}

func newClusterWatch(probePath string, interval time.Duration) *clusterWatch {
	return &clusterWatch{
		probePath: probePath,
		interval:  interval,
		stopCh:    make(chan struct{}),
		log:       logging.NewLogger("plugin.clusterWatch"),
	}
}

// Init implements linker.Initializer: it schedules the first tick and returns
// immediately, never blocking the rest of Plugin.Init on a probe check.
func (w *clusterWatch) Init(ctx context.Context) error {
	w.fut = timeout.Call(w.tick, w.interval)
	return nil
}

func (w *clusterWatch) tick() {
	if !chans.IsOpened(w.stopCh) {
		return
	}
	if _, err := os.Stat(w.probePath); err != nil {
		w.log.Warnf("cluster liveness probe %s missing, dlm_controld may be down: %s", w.probePath, err)
	}
	w.fut = timeout.Call(w.tick, w.interval)
}

// Shutdown implements linker.Shutdowner: stops rescheduling and cancels any tick
// already queued.
func (w *clusterWatch) Shutdown() {
	close(w.stopCh)
	if w.fut != nil {
		w.fut.Cancel()
	}
}
