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
	"sync"

	"github.com/signature-opensource/ck-monitoring-go/core"
)

// queueMessage is the tagged variant every item traveling through the
// dispatcher queue satisfies. Its only method is an unexported marker: the
// worker recovers the concrete type with a type switch in dispatch().
type queueMessage interface {
	queueMessageMarker()
}

type tickMessage struct{}

func (tickMessage) queueMessageMarker() {}

type eventMessage struct{ event *core.LogEvent }

func (eventMessage) queueMessageMarker() {}

type addHandlerMessage struct {
	handler core.Handler
	result  chan error
}

func (addHandlerMessage) queueMessageMarker() {}

type removeHandlerMessage struct {
	handler core.Handler
	result  chan error
}

func (removeHandlerMessage) queueMessageMarker() {}

type runActionMessage struct {
	fn   func(*HandlerList) error
	done chan error
}

func (runActionMessage) queueMessageMarker() {}

type asyncWaitMessage struct{ done chan struct{} }

func (asyncWaitMessage) queueMessageMarker() {}

type syncWaitMessage struct{ done chan struct{} }

func (syncWaitMessage) queueMessageMarker() {}

type closeMessage struct{ event *core.LogEvent }

func (closeMessage) queueMessageMarker() {}

// queue is the unbounded MPSC queue described by §4.3 "Queue contract".
// try_submit is non-blocking from producers and fails only once the queue
// has been closed. The worker pops in FIFO order; when nothing is queued it
// waits on notifyCh (or the caller-supplied poll interval).
type queue struct {
	mu       sync.Mutex
	items    []queueMessage
	closed   bool
	notifyCh chan struct{}
}

func newQueue() *queue {
	return &queue{notifyCh: make(chan struct{}, 1)}
}

func (q *queue) signal() {
	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}

// trySubmit appends msg unless the queue has already been closed.
func (q *queue) trySubmit(msg queueMessage) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.signal()
	return true
}

// close marks the queue closed; subsequent trySubmit calls fail. Already
// queued items remain poppable until drained.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// pop removes and returns the oldest item, if any, without blocking.
func (q *queue) pop() (queueMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return msg, true
}

func (q *queue) isClosedAndEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
