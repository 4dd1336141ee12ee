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

package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/signature-opensource/ck-monitoring-go/core"
)

// GrandOutputConfiguration is one reconfiguration batch delivered to a
// DispatcherSink (§4.3 "Configuration reconciliation"). The filter is kept
// opaque: nil accepts every event, matching the core's policy of not
// interpreting filtering semantics itself.
type GrandOutputConfiguration struct {
	Filter                  func(*core.LogEvent) bool
	TimerDuration           time.Duration
	TrackUnhandledException bool
	StaticGates             string
	EventSources            string
	Handlers                []core.HandlerConfiguration
}

// configSlot is the atomic "pending configurations" slot of §5: producers
// append by CAS-replacing with a concatenated sequence; the worker takes
// the whole sequence atomically and resets it to empty.
type configSlot struct {
	ptr atomic.Pointer[[]GrandOutputConfiguration]
}

// append adds cfg to the pending sequence without blocking other appenders.
func (s *configSlot) append(cfg GrandOutputConfiguration) {
	for {
		old := s.ptr.Load()
		var next []GrandOutputConfiguration
		if old != nil {
			next = make([]GrandOutputConfiguration, len(*old), len(*old)+1)
			copy(next, *old)
			next = append(next, cfg)
		} else {
			next = []GrandOutputConfiguration{cfg}
		}
		if s.ptr.CompareAndSwap(old, &next) {
			return
		}
	}
}

// swapTake atomically returns the pending sequence and resets it to empty.
func (s *configSlot) swapTake() []GrandOutputConfiguration {
	old := s.ptr.Swap(nil)
	if old == nil {
		return nil
	}
	return *old
}
