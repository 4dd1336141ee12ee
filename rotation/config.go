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

package rotation

import "errors"

// ErrInvalidArgument is wrapped around every synchronous argument-validation
// failure (§7 "Invalid argument").
var ErrInvalidArgument = errors.New("rotation: invalid argument")

// Config is the semantic configuration surface of a FileOutput (§6
// "Configuration surface"). Reconfigure takes its optional new values
// through ReconfigureOptions instead.
type Config struct {
	FileNameSuffix     string
	MaxCountPerFile    int
	UseGzipCompression bool

	TimedFolderEnabled        bool
	MaxCurrentLogFolderCount  int
	MaxArchivedLogFolderCount int
	WithLastRunSymlink        bool
	LastRunFileName           string
	FolderPermissions         uint32
	FilePermissions           uint32
}

// ReconfigureOptions carries optional new values for FileOutput.Reconfigure;
// a nil pointer means "leave unchanged" (§4.2 "reconfigure").
type ReconfigureOptions struct {
	FileNameSuffix     *string
	MaxCountPerFile    *int
	UseGzipCompression *bool
	TimedFolderMode    *bool
	WithLastRunSymlink *bool
}

// HousekeepingConfig groups the two retention bounds of file housekeeping
// (§4.2 "file housekeeping"). At least one of MinAge/MaxTotalBytes must be
// positive. FileOutput.RunFileHousekeeping takes the same two bounds as
// separate arguments and does not use this type.
type HousekeepingConfig struct {
	MinAge        int64 // nanoseconds; time.Duration underlying type
	MaxTotalBytes int64
}

func (c Config) validate() error {
	if c.MaxCountPerFile <= 0 {
		return errors.New("rotation: MaxCountPerFile must be > 0")
	}
	if c.FileNameSuffix == "" {
		return errors.New("rotation: FileNameSuffix must not be empty")
	}
	if c.TimedFolderEnabled && c.MaxCurrentLogFolderCount <= 0 {
		return errors.New("rotation: MaxCurrentLogFolderCount must be > 0 when timed folders are enabled")
	}
	if c.WithLastRunSymlink && c.LastRunFileName == "" {
		return errors.New("rotation: LastRunFileName is required when WithLastRunSymlink is set")
	}
	return nil
}
