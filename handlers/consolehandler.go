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

package handlers

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/signature-opensource/ck-monitoring-go/core"
)

// ConsoleHandlerConfiguration targets the single process-wide ConsoleHandler
// by a fixed identity: there is at most one console sink per process.
type ConsoleHandlerConfiguration struct {
	UseStdErr bool
}

// Identity implements core.HandlerConfiguration. Console handlers are
// singletons, so every configuration targets the same identity.
func (ConsoleHandlerConfiguration) Identity() string { return "console" }

// ConsoleHandler writes every entry to stdout or stderr through an injected
// encoder, the trivial second handler kind the reconciler exercises (§4.3
// scenario S4 needs {DemoSink, Console}).
type ConsoleHandler struct {
	mu     sync.Mutex
	out    io.Writer
	encode func(io.Writer, interface{}) error
}

// NewConsoleHandler builds a ConsoleHandler writing to out using encode.
func NewConsoleHandler(out io.Writer, encode func(io.Writer, interface{}) error) *ConsoleHandler {
	return &ConsoleHandler{out: out, encode: encode}
}

// Identity implements core.Handler.
func (h *ConsoleHandler) Identity() string { return "console" }

// Activate implements core.Handler. Console output needs no setup.
func (h *ConsoleHandler) Activate() error { return nil }

// Deactivate implements core.Handler. Console output needs no teardown.
func (h *ConsoleHandler) Deactivate() error { return nil }

// Handle implements core.Handler.
func (h *ConsoleHandler) Handle(event *core.LogEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.encode(h.out, event); err != nil {
		return fmt.Errorf("handlers: console write failed: %w", err)
	}
	return nil
}

// OnTimer implements core.Handler. Console output has nothing periodic to do.
func (h *ConsoleHandler) OnTimer(time.Duration) error { return nil }

// ApplyConfiguration implements core.Handler. Console handlers accept any
// ConsoleHandlerConfiguration without actually changing behavior, since the
// target stream is fixed at construction time.
func (h *ConsoleHandler) ApplyConfiguration(cfg core.HandlerConfiguration) (bool, error) {
	_, ok := cfg.(ConsoleHandlerConfiguration)
	return ok, nil
}
