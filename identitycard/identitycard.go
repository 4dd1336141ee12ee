// Copyright 2015-2017 trivago GmbH
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

// Package identitycard implements the process-level metadata broadcast as
// a special event at worker startup (§4.3 "Startup", SPEC_FULL.md
// "Supplemented features").
package identitycard

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Card is the process identity broadcast once at worker startup and kept
// current as monitors register. It is intentionally small: this is
// metadata about the logging process itself, not a general-purpose
// registry.
type Card struct {
	mu sync.Mutex

	ProcessID    int       `json:"processId"`
	StartTimeUTC time.Time `json:"startTimeUtc"`
	MonitorCount int       `json:"monitorCount"`
}

// New builds a Card stamped with the current process id and start time.
func New() *Card {
	return &Card{
		ProcessID:    os.Getpid(),
		StartTimeUTC: time.Now().UTC(),
	}
}

// RegisterMonitor increments the known-monitor count. The dispatcher calls
// it once at startup for its own worker monitor (§4.3 "register the
// worker's own monitor with the external monitor registry").
func (c *Card) RegisterMonitor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MonitorCount++
}

// Snapshot returns a copy safe to serialize without holding the lock.
func (c *Card) Snapshot() Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Card{ProcessID: c.ProcessID, StartTimeUTC: c.StartTimeUTC, MonitorCount: c.MonitorCount}
}

// Encode renders the current snapshot as the payload of the identity-card
// event (§4.3 "emit the identity-card-full event").
func (c *Card) Encode() ([]byte, error) {
	snap := c.Snapshot()
	return json.Marshal(snap)
}

// Merge decodes payload and folds it into c, reporting whether anything
// actually changed (§4.3 dispatch rule: "suppress dispatch if the merge
// produced no change").
func (c *Card) Merge(payload []byte) (changed bool, err error) {
	var incoming Card
	if err := json.Unmarshal(payload, &incoming); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if incoming.ProcessID == c.ProcessID && incoming.MonitorCount <= c.MonitorCount {
		return false, nil
	}

	if incoming.ProcessID != 0 {
		c.ProcessID = incoming.ProcessID
	}
	if !incoming.StartTimeUTC.IsZero() {
		c.StartTimeUTC = incoming.StartTimeUTC
	}
	if incoming.MonitorCount > c.MonitorCount {
		c.MonitorCount = incoming.MonitorCount
	}
	return true, nil
}
