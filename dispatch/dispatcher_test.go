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
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signature-opensource/ck-monitoring-go/core"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// demoConfig/demoHandler/consoleConfig are a minimal stand-in for the
// handler pair scenario S4 names ({DemoSink, Console}); a real Console
// implementation lives in the handlers package and is exercised there.

type demoConfig struct{ id string }

func (c demoConfig) Identity() string { return c.id }

type consoleConfig struct{}

func (consoleConfig) Identity() string { return "console" }

type demoHandler struct {
	mu              sync.Mutex
	id              string
	activateCount   int
	deactivateCount int
	handled         []string
}

func newDemoHandler(id string) *demoHandler { return &demoHandler{id: id} }

func (h *demoHandler) Identity() string { return h.id }

func (h *demoHandler) Activate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activateCount++
	return nil
}

func (h *demoHandler) Deactivate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deactivateCount++
	return nil
}

func (h *demoHandler) Handle(e *core.LogEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, e.Text)
	return nil
}

func (h *demoHandler) OnTimer(time.Duration) error { return nil }

func (h *demoHandler) ApplyConfiguration(cfg core.HandlerConfiguration) (bool, error) {
	c, ok := cfg.(demoConfig)
	return ok && c.id == h.id, nil
}

func (h *demoHandler) snapshot() (activate, deactivate int, handled []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activateCount, h.deactivateCount, append([]string(nil), h.handled...)
}

// registry lets the test inspect handlers the factory instantiates on the
// worker goroutine, keyed by identity.
type registry struct {
	mu       sync.Mutex
	demos    map[string]*demoHandler
	consoles int
}

func newRegistry() *registry { return &registry{demos: make(map[string]*demoHandler)} }

func (r *registry) factory(cfg core.HandlerConfiguration, _ *core.Services) (core.Handler, error) {
	switch c := cfg.(type) {
	case demoConfig:
		r.mu.Lock()
		defer r.mu.Unlock()
		h := newDemoHandler(c.id)
		r.demos[c.id] = h
		return h, nil
	case consoleConfig:
		r.mu.Lock()
		r.consoles++
		r.mu.Unlock()
		return &consoleStub{}, nil
	default:
		return nil, fmt.Errorf("unknown handler configuration %T", cfg)
	}
}

type consoleStub struct{}

func (*consoleStub) Identity() string                                        { return "console" }
func (*consoleStub) Activate() error                                         { return nil }
func (*consoleStub) Deactivate() error                                       { return nil }
func (*consoleStub) Handle(*core.LogEvent) error                             { return nil }
func (*consoleStub) OnTimer(time.Duration) error                             { return nil }
func (*consoleStub) ApplyConfiguration(cfg core.HandlerConfiguration) (bool, error) {
	_, ok := cfg.(consoleConfig)
	return ok, nil
}

func newTestSink(reg *registry) *DispatcherSink {
	return New(Options{Factory: reg.factory, Logger: testLogger()})
}

// S4 — Reconfiguration no-stutter.
func TestReconfigurationNoStutter(t *testing.T) {
	reg := newRegistry()
	sink := newTestSink(reg)
	defer sink.Stop()

	sink.PushConfiguration(GrandOutputConfiguration{
		TimerDuration: time.Hour,
		Handlers:      []core.HandlerConfiguration{demoConfig{id: "demo"}},
	})
	require.NoError(t, sink.SyncWait())

	reg.mu.Lock()
	demo := reg.demos["demo"]
	reg.mu.Unlock()
	require.NotNil(t, demo)

	activate, deactivate, _ := demo.snapshot()
	assert.Equal(t, 1, activate)
	assert.Equal(t, 0, deactivate)

	sink.PushConfiguration(GrandOutputConfiguration{
		TimerDuration: time.Hour,
		Handlers:      []core.HandlerConfiguration{demoConfig{id: "demo"}, consoleConfig{}},
	})
	require.NoError(t, sink.SyncWait())

	activate, deactivate, _ = demo.snapshot()
	assert.Equal(t, 1, activate, "demo must not be re-activated")
	assert.Equal(t, 0, deactivate, "demo must not be deactivated across an unchanged config")

	reg.mu.Lock()
	consoles := reg.consoles
	reg.mu.Unlock()
	assert.Equal(t, 1, consoles)
}

// S5 — Shutdown drain: every submitted event is handled, in submission
// order, and the close-sentinel is dispatched last.
func TestShutdownDrain(t *testing.T) {
	reg := newRegistry()
	sink := newTestSink(reg)

	sink.PushConfiguration(GrandOutputConfiguration{
		TimerDuration: time.Hour,
		Handlers:      []core.HandlerConfiguration{demoConfig{id: "demo"}},
	})
	require.NoError(t, sink.SyncWait())

	reg.mu.Lock()
	demo := reg.demos["demo"]
	reg.mu.Unlock()
	require.NotNil(t, demo)

	const n = 50
	for i := 0; i < n; i++ {
		evt := core.AcquireEvent("producer", time.Now().UTC(), time.Now().UTC(), core.LevelInfo, fmt.Sprintf("event-%d", i))
		require.True(t, sink.Submit(evt))
	}
	sink.Stop()

	_, _, handled := demo.snapshot()
	require.NotEmpty(t, handled)
	require.Equal(t, "identity-card", handled[0], "the startup identity-card broadcast precedes any submitted event")

	require.Equal(t, "shutdown", handled[len(handled)-1], "the close-sentinel is dispatched last")

	submitted := handled[1 : len(handled)-1]
	require.Len(t, submitted, n)
	for i, text := range submitted {
		assert.Equal(t, fmt.Sprintf("event-%d", i), text, "events must be observed in submission order")
	}
}

// The startup identity-card broadcast must actually reach handlers that are
// live by the time it fires, not be silently swallowed by the same merge
// suppression that protects against re-broadcasting an unchanged card.
func TestIdentityCardBroadcastReachesHandlers(t *testing.T) {
	reg := newRegistry()
	sink := newTestSink(reg)
	defer sink.Stop()

	sink.PushConfiguration(GrandOutputConfiguration{
		TimerDuration: time.Hour,
		Handlers:      []core.HandlerConfiguration{demoConfig{id: "demo"}},
	})
	require.NoError(t, sink.SyncWait())

	reg.mu.Lock()
	demo := reg.demos["demo"]
	reg.mu.Unlock()
	require.NotNil(t, demo)

	_, _, handled := demo.snapshot()
	require.NotEmpty(t, handled, "the startup identity-card event must be delivered")
	assert.Equal(t, "identity-card", handled[0])
}

// Invariant 1 / 5 corollary: submitting after Stop fails and the caller
// retains ownership (must release); the dispatcher never panics.
func TestSubmitAfterStopFails(t *testing.T) {
	reg := newRegistry()
	sink := newTestSink(reg)
	sink.PushConfiguration(GrandOutputConfiguration{Handlers: nil})
	require.NoError(t, sink.SyncWait())
	sink.Stop()

	evt := core.AcquireEvent("producer", time.Now().UTC(), time.Now().UTC(), core.LevelInfo, "late")
	ok := sink.Submit(evt)
	assert.False(t, ok)
	evt.Release()
}
