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

import "github.com/signature-opensource/ck-monitoring-go/core"

// HandlerList holds the dispatcher's active handlers. It is mutated only by
// the worker goroutine; Action callbacks receive it as a read-only-by-
// convention facade (§4.3 "Action", §5 "Handler list").
type HandlerList struct {
	handlers []core.Handler
}

// All returns the live handler slice. Callers running inside an Action must
// treat it as read-only: mutating it outside the worker breaks the "worker
// is the sole mutator" invariant.
func (l *HandlerList) All() []core.Handler {
	return l.handlers
}

// Find returns the handler with the given identity, if present.
func (l *HandlerList) Find(identity string) (core.Handler, bool) {
	for _, h := range l.handlers {
		if h.Identity() == identity {
			return h, true
		}
	}
	return nil, false
}

func (l *HandlerList) add(h core.Handler) {
	l.handlers = append(l.handlers, h)
}

func (l *HandlerList) remove(h core.Handler) bool {
	for i, existing := range l.handlers {
		if existing == h {
			l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (l *HandlerList) replace(handlers []core.Handler) {
	l.handlers = handlers
}
