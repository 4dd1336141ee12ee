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
	"errors"

	"github.com/signature-opensource/ck-monitoring-go/core"
)

// ErrSinkClosed is returned by submission methods once the sink has started
// (or finished) shutting down.
var ErrSinkClosed = errors.New("dispatch: sink is closed")

// RunAction submits fn to run on the worker goroutine against the live
// handler list and blocks until it has run, returning whatever error fn
// returned (or a panic converted to an error). This is the mechanism for
// operations that must execute on the worker thread (§4.3 "Action").
func (s *DispatcherSink) RunAction(fn func(*HandlerList) error) error {
	done := make(chan error, 1)
	if !s.queue.trySubmit(runActionMessage{fn: fn, done: done}) {
		return ErrSinkClosed
	}
	return <-done
}

// SyncWait enqueues a barrier and blocks until the worker reaches it,
// guaranteeing every event this caller previously submitted has been
// dispatched (§4.3 "Waits and actions").
func (s *DispatcherSink) SyncWait() error {
	done := make(chan struct{})
	if !s.queue.trySubmit(syncWaitMessage{done: done}) {
		return ErrSinkClosed
	}
	<-done
	return nil
}

// AsyncWait enqueues a barrier and returns immediately with a channel that
// closes once the worker reaches it.
func (s *DispatcherSink) AsyncWait() (<-chan struct{}, error) {
	done := make(chan struct{})
	if !s.queue.trySubmit(asyncWaitMessage{done: done}) {
		close(done)
		return done, ErrSinkClosed
	}
	return done, nil
}

// AddHandler activates h and appends it to the live handler list, blocking
// until the worker has done so (§4.3 item dispatch rule "AddHandler").
func (s *DispatcherSink) AddHandler(h core.Handler) error {
	result := make(chan error, 1)
	if !s.queue.trySubmit(addHandlerMessage{handler: h, result: result}) {
		return ErrSinkClosed
	}
	return <-result
}

// RemoveHandler deactivates h and removes it from the live handler list,
// blocking until the worker has done so.
func (s *DispatcherSink) RemoveHandler(h core.Handler) error {
	result := make(chan error, 1)
	if !s.queue.trySubmit(removeHandlerMessage{handler: h, result: result}) {
		return ErrSinkClosed
	}
	return <-result
}
