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

// Package grandconfig binds GrandOutputConfiguration to an external YAML
// file plus environment variables and flags, hot-reloading it into a
// dispatch.DispatcherSink's pending-configurations slot (§4.3 "Configuration
// reconciler", §6 "Configuration surface").
package grandconfig

import (
	"fmt"
	"time"

	"github.com/signature-opensource/ck-monitoring-go/core"
	"github.com/signature-opensource/ck-monitoring-go/dispatch"
	"github.com/signature-opensource/ck-monitoring-go/handlers"
	"github.com/signature-opensource/ck-monitoring-go/rotation"
)

// HandlerSpec is one entry of the bindable handler list. Type selects which
// concrete core.HandlerConfiguration it decodes to; the remaining fields
// are interpreted according to Type and left zero otherwise.
type HandlerSpec struct {
	Type string `dials:"type"`
	Path string `dials:"path"`

	FileNameSuffix            string `dials:"file_name_suffix"`
	MaxCountPerFile           int    `dials:"max_count_per_file"`
	UseGzipCompression        bool   `dials:"use_gzip_compression"`
	TimedFolderEnabled        bool   `dials:"timed_folder_enabled"`
	MaxCurrentLogFolderCount  int    `dials:"max_current_log_folder_count"`
	MaxArchivedLogFolderCount int    `dials:"max_archived_log_folder_count"`
	WithLastRunSymlink        bool   `dials:"with_last_run_symlink"`
	LastRunFileName           string `dials:"last_run_file_name"`

	HousekeepingMinAgeSeconds int64 `dials:"housekeeping_min_age_seconds"`
	HousekeepingMaxTotalBytes int64 `dials:"housekeeping_max_total_bytes"`

	UseStdErr bool `dials:"use_stderr"`
}

// ToHandlerConfiguration decodes the spec into the concrete
// core.HandlerConfiguration the matching handlers-package type expects.
func (s HandlerSpec) ToHandlerConfiguration() (core.HandlerConfiguration, error) {
	switch s.Type {
	case "file":
		return handlers.FileHandlerConfiguration{
			Path: s.Path,
			Rotation: rotation.Config{
				FileNameSuffix:            s.FileNameSuffix,
				MaxCountPerFile:           s.MaxCountPerFile,
				UseGzipCompression:        s.UseGzipCompression,
				TimedFolderEnabled:        s.TimedFolderEnabled,
				MaxCurrentLogFolderCount:  s.MaxCurrentLogFolderCount,
				MaxArchivedLogFolderCount: s.MaxArchivedLogFolderCount,
				WithLastRunSymlink:        s.WithLastRunSymlink,
				LastRunFileName:           s.LastRunFileName,
			},
			HousekeepingMinAge:  time.Duration(s.HousekeepingMinAgeSeconds) * time.Second,
			HousekeepingMaxSize: s.HousekeepingMaxTotalBytes,
		}, nil
	case "console":
		return handlers.ConsoleHandlerConfiguration{UseStdErr: s.UseStdErr}, nil
	default:
		return nil, fmt.Errorf("grandconfig: unknown handler type %q", s.Type)
	}
}

// FileConfig is the root bindable configuration struct (§6 "Configuration
// surface"): a top-level filter (by level threshold, the common case),
// timer duration, exception tracking, optional gates/event-source strings,
// and the ordered handler list.
type FileConfig struct {
	ConfigFile string `dials:"config_file"`

	MinimumLevel             string        `dials:"minimum_level"`
	TimerDurationSeconds     int           `dials:"timer_duration_seconds"`
	TrackUnhandledException  bool          `dials:"track_unhandled_exception"`
	StaticGates              string        `dials:"static_gates"`
	EventSources             string        `dials:"event_sources"`
	Handlers                 []HandlerSpec `dials:"handlers"`
}

// ConfigPath implements ez.ConfigWithConfigPath, letting dials locate the
// YAML file named by -config-file or the CONFIG_FILE environment variable.
func (c *FileConfig) ConfigPath() (string, bool) {
	if c.ConfigFile == "" {
		return "", false
	}
	return c.ConfigFile, true
}

// ToGrandOutputConfiguration decodes c into the dispatch package's
// reconciliation input, skipping (and logging via the returned errs slice)
// any handler spec that fails to decode.
func (c FileConfig) ToGrandOutputConfiguration() (dispatch.GrandOutputConfiguration, []error) {
	out := dispatch.GrandOutputConfiguration{
		TimerDuration:           time.Duration(c.TimerDurationSeconds) * time.Second,
		TrackUnhandledException: c.TrackUnhandledException,
		StaticGates:             c.StaticGates,
		EventSources:            c.EventSources,
	}
	if min, ok := parseLevel(c.MinimumLevel); ok {
		out.Filter = func(e *core.LogEvent) bool { return e.Level >= min }
	}

	var errs []error
	for _, spec := range c.Handlers {
		cfg, err := spec.ToHandlerConfiguration()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.Handlers = append(out.Handlers, cfg)
	}
	return out, errs
}

func parseLevel(name string) (core.Level, bool) {
	switch name {
	case "Trace":
		return core.LevelTrace, true
	case "Debug":
		return core.LevelDebug, true
	case "Info":
		return core.LevelInfo, true
	case "Warn":
		return core.LevelWarn, true
	case "Error":
		return core.LevelError, true
	case "Fatal":
		return core.LevelFatal, true
	default:
		return 0, false
	}
}
