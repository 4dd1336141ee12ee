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

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signature-opensource/ck-monitoring-go/internal/metrics"
)

// Housekeeper enumerates candidate log files under a FileOutput's root and
// enforces age and total-size retention caps (§4.2 "file housekeeping").
type Housekeeper struct {
	logger  logrus.FieldLogger
	metrics *metrics.Registry
}

// NewHousekeeper builds a Housekeeper that logs through logger. reg may be
// nil (every Registry method is then a no-op).
func NewHousekeeper(logger logrus.FieldLogger, reg *metrics.Registry) *Housekeeper {
	return &Housekeeper{logger: logger, metrics: reg}
}

type candidateFile struct {
	path string
	date time.Time
	size int64
}

// Run enforces minAge/maxTotalBytes under root. basePath is the currently
// active FileOutput's folder (flat root or current timed folder);
// skipPath, if non-empty, is the currently open temp file and is never a
// deletion candidate (§4.2 step 2). suffix is the FileOutput's configured
// file suffix, needed to recognize temp/final names.
func (h *Housekeeper) Run(root, basePath, skipPath, suffix string, minAge time.Duration, maxTotalBytes int64) error {
	if minAge <= 0 && maxTotalBytes <= 0 {
		return fmt.Errorf("%w: housekeeping requires a positive MinAge or MaxTotalBytes", ErrInvalidArgument)
	}

	candidates, err := h.collectCandidates(root, basePath, skipPath, suffix)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	cutoff := now.Add(-minAge)

	var preservedBytes, retainedBytes int64
	var deletable []candidateFile
	for _, c := range candidates {
		if minAge > 0 && !c.date.Before(cutoff) {
			preservedBytes += c.size
			continue
		}
		retainedBytes += c.size
		deletable = append(deletable, c)
	}

	total := preservedBytes + retainedBytes
	if maxTotalBytes > 0 && total > maxTotalBytes && len(deletable) > 0 {
		// Newest to oldest, then delete from the oldest end (§4.2 step 4).
		sort.SliceStable(deletable, func(i, j int) bool { return deletable[i].date.After(deletable[j].date) })

		for i := len(deletable) - 1; i >= 0 && preservedBytes+retainedBytes > maxTotalBytes; i-- {
			f := deletable[i]
			if err := os.Remove(f.path); err != nil {
				h.logger.Warnf("rotation: failed to prune %q: %v", f.path, err)
				continue
			}
			retainedBytes -= f.size
		}
	}

	h.pruneEmptyTimedFolders(root)
	h.metrics.IncHousekeepingRun()
	return nil
}

func (h *Housekeeper) collectCandidates(root, basePath, skipPath, suffix string) ([]candidateFile, error) {
	var all []candidateFile

	collectFlat := func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("rotation: reading %q: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if path == skipPath {
				continue
			}
			date, ok := candidateDate(entry.Name(), suffix)
			if !ok {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			all = append(all, candidateFile{path: path, date: date, size: info.Size()})
		}
		return nil
	}

	if err := collectFlat(basePath); err != nil {
		return nil, err
	}

	rootEntries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return all, nil
		}
		return nil, fmt.Errorf("rotation: reading root %q: %w", root, err)
	}

	for _, entry := range rootEntries {
		if !entry.IsDir() {
			continue
		}
		full := filepath.Join(root, entry.Name())
		switch {
		case strings.EqualFold(entry.Name(), ArchiveDirName):
			if err := h.collectRecursive(full, skipPath, suffix, &all); err != nil {
				return nil, err
			}
		case full == basePath:
			// already collected above
		default:
			if _, ok := TryMatchTimedName(entry.Name()); ok {
				if err := collectFlat(full); err != nil {
					return nil, err
				}
			}
		}
	}

	return all, nil
}

// collectRecursive walks arbitrarily deep, used only under Archive/ (§4.2
// step 1: "recursing further through Archive only").
func (h *Housekeeper) collectRecursive(dir, skipPath, suffix string, out *[]candidateFile) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("rotation: reading %q: %w", dir, err)
	}
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := h.collectRecursive(full, skipPath, suffix, out); err != nil {
				return err
			}
			continue
		}
		if full == skipPath {
			continue
		}
		date, ok := candidateDate(entry.Name(), suffix)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		*out = append(*out, candidateFile{path: full, date: date, size: info.Size()})
	}
	return nil
}

// pruneEmptyTimedFolders removes timed subfolders (non-recursively) that
// ended up with no files and no subdirectories (§4.2 step 5).
func (h *Housekeeper) pruneEmptyTimedFolders(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.EqualFold(entry.Name(), ArchiveDirName) {
			continue
		}
		if _, ok := TryMatchTimedName(entry.Name()); !ok {
			continue
		}
		full := filepath.Join(root, entry.Name())
		inner, err := os.ReadDir(full)
		if err != nil || len(inner) > 0 {
			continue
		}
		if err := os.Remove(full); err != nil {
			h.logger.Warnf("rotation: failed to prune empty folder %q: %v", full, err)
		}
	}
}

// candidateDate reports whether name is a temp ("T-{date}{suffix}.tmp") or
// final ("{date}{suffix}") candidate and, if so, the date it encodes.
func candidateDate(name, suffix string) (time.Time, bool) {
	if token, ok := tryMatchTempName(name, suffix); ok {
		return TryMatchTimedName(token)
	}
	if token, ok := tryMatchFinalName(name, suffix); ok {
		return TryMatchTimedName(token)
	}
	return time.Time{}, false
}
