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

package core

import (
	"time"

	"github.com/sirupsen/logrus"
)

// HandlerConfiguration is opaque to the core. A configuration applies to a
// handler iff the handler's ApplyConfiguration returns true; the
// dispatcher's reconciler uses that as its matching predicate (typically
// equality of Identity()).
type HandlerConfiguration interface {
	// Identity names the handler this configuration targets, e.g. a file
	// path or a registered handler-type name. Used only as a hint; the
	// authoritative match is ApplyConfiguration's return value.
	Identity() string
}

// Handler is a polymorphic output sink. Lifecycle:
//
//	Activate -> (Handle | OnTimer | ApplyConfiguration)* -> Deactivate
//
// A handler that returns an error from any method is considered faulty and
// is deactivated and removed by the dispatcher (see dispatch.DispatcherSink).
type Handler interface {
	// Identity returns the stable identifier the reconciler matches
	// incoming HandlerConfigurations against.
	Identity() string

	// Activate prepares the handler to receive events. Called once before
	// any Handle/OnTimer/ApplyConfiguration call.
	Activate() error

	// Deactivate releases any resources the handler holds. Called when the
	// handler leaves the dispatcher: during reconciliation, on RemoveHandler,
	// after a fault, or at shutdown.
	Deactivate() error

	// Handle processes a single event. The event remains owned by the
	// dispatcher; handlers must not call Release on it.
	Handle(event *LogEvent) error

	// OnTimer is invoked by the dispatcher's periodic maintenance tick.
	OnTimer(elapsed time.Duration) error

	// ApplyConfiguration attempts to reconfigure the handler in place.
	// Returns true if cfg was accepted (whether or not anything actually
	// changed), false if cfg does not target this handler.
	ApplyConfiguration(cfg HandlerConfiguration) (bool, error)
}

// HandlerFactory instantiates a new Handler from a HandlerConfiguration and
// a Services container. It replaces the source's reflection-based handler
// discovery with an explicit factory.
type HandlerFactory func(cfg HandlerConfiguration, services *Services) (Handler, error)

// Services is the small container passed to handler factories. It carries
// at minimum the identity card; additional fields can be added by embedding
// without breaking existing factories.
type Services struct {
	IdentityCard interface{}
	Logger       logrus.FieldLogger
}
