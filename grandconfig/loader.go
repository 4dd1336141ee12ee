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

package grandconfig

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/vimeo/dials"
	"github.com/vimeo/dials/ez"

	"github.com/signature-opensource/ck-monitoring-go/dispatch"
)

// Loader binds FileConfig with github.com/vimeo/dials: an on-disk YAML
// file, overridable by environment variables and flags, optionally watched
// for changes. Every new config version becomes one GrandOutputConfiguration
// pushed onto a DispatcherSink's pending-configurations slot.
type Loader struct {
	d      *dials.Dials[FileConfig]
	logger logrus.FieldLogger
}

// NewLoader builds the dials stack from defaults and, if
// defaults.ConfigFile names an existing path, layers in that YAML file.
// watch enables dials' file-watching source so subsequent edits to the
// file produce new config versions through Watch.
func NewLoader(ctx context.Context, defaults FileConfig, watch bool, logger logrus.FieldLogger) (*Loader, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d, err := ez.YAMLConfigEnvFlag(ctx, &defaults, ez.Params[FileConfig]{WatchConfigFile: watch})
	if err != nil {
		return nil, err
	}
	return &Loader{d: d, logger: logger}, nil
}

// PushInitial converts the currently bound configuration and pushes it onto
// sink, unblocking the worker's startup spin-poll (§4.3 "Startup").
func (l *Loader) PushInitial(sink *dispatch.DispatcherSink) {
	l.push(sink, *l.d.View())
}

// Watch forwards every subsequent dials.Dials.Events() version onto sink
// until ctx is done or the events channel closes. Call after PushInitial;
// intended to run in its own goroutine.
func (l *Loader) Watch(ctx context.Context, sink *dispatch.DispatcherSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-l.d.Events():
			if !ok {
				return
			}
			l.push(sink, *cfg)
		}
	}
}

func (l *Loader) push(sink *dispatch.DispatcherSink, cfg FileConfig) {
	out, errs := cfg.ToGrandOutputConfiguration()
	for _, err := range errs {
		l.logger.Errorf("grandconfig: skipping handler configuration: %v", err)
	}
	sink.PushConfiguration(out)
}
