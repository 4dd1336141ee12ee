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

// Package dispatch implements the single-consumer multi-producer core: an
// unbounded queue feeding one worker goroutine that owns a dynamic handler
// list, applies live reconfigurations, runs periodic maintenance timers,
// and drains to zero on shutdown.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signature-opensource/ck-monitoring-go/core"
	"github.com/signature-opensource/ck-monitoring-go/identitycard"
	"github.com/signature-opensource/ck-monitoring-go/internal/metrics"
)

// awakerInterval is the worker's own heartbeat, re-entering the on_timer
// branch when the queue would otherwise sit idle (§9 "Awaker timer"). It is
// not load-bearing for event delivery.
const awakerInterval = 100 * time.Millisecond

// configPollInterval is the spin-poll period while waiting for the first
// configuration batch at startup (§4.3 "Startup").
const configPollInterval = 5 * time.Millisecond

// Options configures a DispatcherSink at construction time.
type Options struct {
	Factory core.HandlerFactory
	Logger  logrus.FieldLogger
	Metrics *metrics.Registry

	// ExternalTick, if non-nil, is invoked from the worker loop every
	// ExternalTickInterval in addition to each handler's own OnTimer
	// (§4.3 main loop, "external-timer callback").
	ExternalTick         func()
	ExternalTickInterval time.Duration
}

// DispatcherSink is the MPSC queue plus the single worker that drains it.
type DispatcherSink struct {
	queue    *queue
	pending  configSlot
	handlers HandlerList
	services *core.Services
	factory  core.HandlerFactory
	logger   logrus.FieldLogger
	metrics  *metrics.Registry
	identity *identitycard.Card

	filter        func(*core.LogEvent) bool
	timerDuration time.Duration

	externalTick         func()
	externalTickInterval time.Duration

	awakerStop chan struct{}
	awakerDone chan struct{}

	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a DispatcherSink and starts its worker goroutine. The worker
// blocks at startup until at least one configuration is pushed with
// PushConfiguration (§4.3 "Startup").
func New(opts Options) *DispatcherSink {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.ExternalTickInterval <= 0 {
		opts.ExternalTickInterval = time.Minute
	}

	s := &DispatcherSink{
		queue:                newQueue(),
		factory:              opts.Factory,
		logger:               opts.Logger,
		metrics:              opts.Metrics,
		externalTick:         opts.ExternalTick,
		externalTickInterval: opts.ExternalTickInterval,
		timerDuration:        time.Second,
		stopped:              make(chan struct{}),
	}
	s.services = &core.Services{Logger: s.logger}

	go s.run()
	return s
}

// PushConfiguration appends cfg to the pending-configurations slot. The
// worker applies every pending configuration between queue items (§5
// "Pending configurations slot").
func (s *DispatcherSink) PushConfiguration(cfg GrandOutputConfiguration) {
	s.pending.append(cfg)
}

// Submit enqueues event for dispatch. On failure (the sink is shutting
// down) the caller must release the event (§4.3 "Queue contract").
func (s *DispatcherSink) Submit(event *core.LogEvent) bool {
	if s.queue.trySubmit(eventMessage{event: event}) {
		s.metrics.IncEventsSubmitted()
		return true
	}
	s.metrics.IncEventsDropped()
	return false
}

// QueueDepth reports the number of messages currently buffered. Intended
// for metrics/diagnostics, not for flow control.
func (s *DispatcherSink) QueueDepth() int {
	return s.queue.depth()
}

// Stop triggers an idempotent shutdown: the first call writes a
// close-sentinel event and completes the queue writer; every caller blocks
// until the worker has fully drained and deactivated every handler (§4.3
// "Shutdown").
func (s *DispatcherSink) Stop() {
	s.stopOnce.Do(func() {
		sentinel := core.AcquireEvent("dispatch.sink", time.Now().UTC(), time.Now().UTC(), core.LevelInfo, "shutdown")
		s.queue.trySubmit(closeMessage{event: sentinel})
		s.queue.close()
	})
	<-s.stopped
}

func (s *DispatcherSink) run() {
	defer close(s.stopped)

	initial := s.awaitFirstConfiguration()
	s.identity = identitycard.New()
	s.identity.RegisterMonitor()
	s.applyConfigurations(initial)

	if payload, err := s.identity.Encode(); err == nil {
		evt := core.AcquireEvent("dispatch.sink", time.Now().UTC(), time.Now().UTC(), core.LevelInfo, "identity-card")
		evt.Tags = core.NewTagSet(core.IdentityCardTag)
		evt.Payload = payload
		s.dispatchOwnIdentityBroadcast(evt)
	} else {
		s.logger.Errorf("dispatch: failed to encode identity card: %v", err)
	}

	now := time.Now()
	nextTick := now.Add(s.timerDuration)
	nextExternalTick := now.Add(s.externalTickInterval)

	s.awakerStop = make(chan struct{})
	s.awakerDone = make(chan struct{})
	go s.runAwaker()

	for {
		s.metrics.SetQueueDepth(s.queue.depth())

		msg, ok := s.queue.pop()
		if !ok {
			if s.queue.isClosedAndEmpty() {
				break
			}
			select {
			case <-s.queue.notifyCh:
			case <-time.After(awakerInterval):
			}
			continue
		}

		if pending := s.pending.swapTake(); len(pending) > 0 {
			s.applyConfigurations(pending)
		}

		stop := s.dispatch(msg)

		now = time.Now()
		if !stop && !now.Before(nextTick) {
			s.runOnTimer(s.timerDuration)
			nextTick = now.Add(s.timerDuration)
		}
		if !stop && s.externalTick != nil && !now.Before(nextExternalTick) {
			s.externalTick()
			nextExternalTick = now.Add(s.externalTickInterval)
		}

		if stop {
			break
		}
	}

	close(s.awakerStop)
	<-s.awakerDone

	s.drainRemaining()
	s.deactivateAll()
}

func (s *DispatcherSink) awaitFirstConfiguration() []GrandOutputConfiguration {
	for {
		if cfgs := s.pending.swapTake(); len(cfgs) > 0 {
			return cfgs
		}
		time.Sleep(configPollInterval)
	}
}

func (s *DispatcherSink) runAwaker() {
	defer close(s.awakerDone)
	ticker := time.NewTicker(awakerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.queue.trySubmit(tickMessage{})
		case <-s.awakerStop:
			return
		}
	}
}

func (s *DispatcherSink) applyConfigurations(cfgs []GrandOutputConfiguration) {
	for _, cfg := range cfgs {
		s.filter = cfg.Filter
		if cfg.TimerDuration > 0 {
			s.timerDuration = cfg.TimerDuration
		}
		reconcile(&s.handlers, cfg.Handlers, s.factory, s.services, s.logger, s.metrics)
	}
}

// dispatch handles one queue item and reports whether the worker should
// stop (§4.3 "Item dispatch rules").
func (s *DispatcherSink) dispatch(msg queueMessage) (stop bool) {
	switch m := msg.(type) {
	case tickMessage:
		// No event side effect; the periodic block in run() handles ticks.

	case eventMessage:
		s.dispatchEvent(m.event)

	case addHandlerMessage:
		err := m.handler.Activate()
		if err != nil {
			s.logger.Errorf("dispatch: handler %q failed to activate: %v", m.handler.Identity(), err)
		} else {
			s.handlers.add(m.handler)
		}
		if m.result != nil {
			m.result <- err
		}

	case removeHandlerMessage:
		err := m.handler.Deactivate()
		if err != nil {
			s.logger.Errorf("dispatch: handler %q failed to deactivate: %v", m.handler.Identity(), err)
		} else {
			s.handlers.remove(m.handler)
		}
		if m.result != nil {
			m.result <- err
		}

	case runActionMessage:
		err := s.runActionSafely(m.fn)
		if m.done != nil {
			m.done <- err
		}

	case asyncWaitMessage:
		close(m.done)

	case syncWaitMessage:
		close(m.done)

	case closeMessage:
		s.dispatchEvent(m.event)
		return true
	}
	return false
}

func (s *DispatcherSink) runActionSafely(fn func(*HandlerList) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: action panicked: %v", r)
		}
	}()
	return fn(&s.handlers)
}

// dispatchEvent implements the `Event(e)` dispatch rule, always releasing
// the event exactly once.
func (s *DispatcherSink) dispatchEvent(e *core.LogEvent) {
	defer e.Release()

	if e.Tags.Has(core.IdentityCardTag) {
		changed, err := s.identity.Merge(e.Payload)
		if err != nil {
			s.logger.Errorf("dispatch: identity card payload decode failed: %v", err)
			return
		}
		if !changed {
			return
		}
	}

	s.deliver(e)
}

// dispatchOwnIdentityBroadcast delivers the sink's own startup identity-card
// event straight to the handlers, skipping the Merge step dispatchEvent
// applies to incoming identity-card events. e was just built from
// s.identity's own current state, so merging it back into s.identity would
// always compare the card against itself and never register as a change
// (§4.3 "emit the identity-card-full event").
func (s *DispatcherSink) dispatchOwnIdentityBroadcast(e *core.LogEvent) {
	defer e.Release()
	s.deliver(e)
}

// deliver runs the filter and hands e to every live handler, tracking and
// evicting any that fault.
func (s *DispatcherSink) deliver(e *core.LogEvent) {
	if s.filter != nil && !s.filter(e) {
		return
	}

	var faulted []core.Handler
	for _, h := range s.handlers.All() {
		if err := h.Handle(e); err != nil {
			s.logger.Errorf("dispatch: handler %q faulted: %v", h.Identity(), err)
			s.metrics.IncHandlerFault(h.Identity())
			faulted = append(faulted, h)
		}
	}
	s.metrics.IncEventsHandled()
	s.deactivateFaulted(faulted)
}

func (s *DispatcherSink) runOnTimer(elapsed time.Duration) {
	var faulted []core.Handler
	for _, h := range s.handlers.All() {
		if err := h.OnTimer(elapsed); err != nil {
			s.logger.Errorf("dispatch: handler %q faulted during on_timer: %v", h.Identity(), err)
			s.metrics.IncHandlerFault(h.Identity())
			faulted = append(faulted, h)
		}
	}
	s.deactivateFaulted(faulted)
}

// deactivateFaulted removes and best-effort deactivates handlers that threw
// during the current item (§4.3 "Handler fault policy").
func (s *DispatcherSink) deactivateFaulted(faulted []core.Handler) {
	for _, h := range faulted {
		if err := h.Deactivate(); err != nil {
			s.logger.Warnf("dispatch: handler %q failed to deactivate after fault: %v", h.Identity(), err)
		}
		s.handlers.remove(h)
	}
}

// drainRemaining releases any event left in the queue without dispatching
// it, tolerating the race where a producer slips an item in between the
// sentinel write and the writer completing (§4.3 "Shutdown").
func (s *DispatcherSink) drainRemaining() {
	for {
		msg, ok := s.queue.pop()
		if !ok {
			return
		}
		switch m := msg.(type) {
		case eventMessage:
			m.event.Release()
		case closeMessage:
			m.event.Release()
		case addHandlerMessage:
			if m.result != nil {
				m.result <- ErrSinkClosed
			}
		case removeHandlerMessage:
			if m.result != nil {
				m.result <- ErrSinkClosed
			}
		case runActionMessage:
			if m.done != nil {
				m.done <- ErrSinkClosed
			}
		case asyncWaitMessage:
			close(m.done)
		case syncWaitMessage:
			close(m.done)
		}
	}
}

func (s *DispatcherSink) deactivateAll() {
	for _, h := range s.handlers.All() {
		if err := h.Deactivate(); err != nil {
			s.logger.Warnf("dispatch: handler %q failed to deactivate during shutdown: %v", h.Identity(), err)
		}
	}
	s.handlers.replace(nil)
}
