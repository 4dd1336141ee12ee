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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ArchiveDirName is the well-known subdirectory name that receives rolled
// out timed folders (§6 "Filesystem layout").
const ArchiveDirName = "Archive"

const cleanupMaxRetries = 5
const cleanupRetryBackoff = 100 * time.Millisecond

// TimedFolderManager creates timed subfolders under a FileOutput's root,
// and enforces the current/archive folder-count caps (§4.2 "timed-folder
// cleanup", §9 "Open question — cleanup triggering": invoked eagerly at
// handler activation, never from the periodic timer).
type TimedFolderManager struct {
	logger logrus.FieldLogger
}

// NewTimedFolderManager builds a manager that logs through logger.
func NewTimedFolderManager(logger logrus.FieldLogger) *TimedFolderManager {
	return &TimedFolderManager{logger: logger}
}

// EnsureCurrentFolder resolves the timed folder a FileOutput should write
// into. If existingFolder is non-empty and still present under root, it is
// preserved (§3 invariant: "the previously chosen timed folder is preserved
// if still present"); otherwise a fresh one is minted from nameGen and
// created.
func (m *TimedFolderManager) EnsureCurrentFolder(root, existingFolder string, nameGen *UniqueTimedName, perm os.FileMode) (string, error) {
	if existingFolder != "" {
		if info, err := os.Stat(filepath.Join(root, existingFolder)); err == nil && info.IsDir() {
			return existingFolder, nil
		}
	}

	folder := nameGen.Next(time.Now())
	if err := os.MkdirAll(filepath.Join(root, folder), perm); err != nil {
		return "", fmt.Errorf("rotation: creating timed folder %q: %w", folder, err)
	}
	return folder, nil
}

type timedEntry struct {
	name string
	date time.Time
}

// RunCleanup enforces the current/archive folder-count caps under root.
// currentBase is the folder name currently in use (excluded from the
// count per §4.2 step 2: "the current base is not counted, and one extra
// slot is reserved for it to land into after its own eventual closure").
// maxArchived == 0 means unlimited (honor age/size only, handled by the
// Housekeeper instead).
func (m *TimedFolderManager) RunCleanup(root string, maxCurrent, maxArchived int, currentBase string) error {
	var lastErr error
	for attempt := 0; attempt < cleanupMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * cleanupRetryBackoff)
			m.logger.Warnf("rotation: retrying timed-folder cleanup (attempt %d/%d): %v", attempt+1, cleanupMaxRetries, lastErr)
		}

		if err := m.runCleanupOnce(root, maxCurrent, maxArchived, currentBase); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	m.logger.Errorf("rotation: timed-folder cleanup failed after %d attempts: %v", cleanupMaxRetries, lastErr)
	return lastErr
}

func (m *TimedFolderManager) runCleanupOnce(root string, maxCurrent, maxArchived int, currentBase string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("rotation: reading root %q: %w", root, err)
	}

	var timedFolders []timedEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if entry.Name() == currentBase {
			continue
		}
		if strings.EqualFold(entry.Name(), ArchiveDirName) {
			continue
		}
		date, ok := TryMatchTimedName(entry.Name())
		if !ok {
			continue
		}
		timedFolders = append(timedFolders, timedEntry{name: entry.Name(), date: date})
	}

	// Most recent first.
	sort.SliceStable(timedFolders, func(i, j int) bool {
		return timedFolders[i].date.After(timedFolders[j].date)
	})

	if len(timedFolders) >= maxCurrent {
		excess := len(timedFolders) - (maxCurrent - 1)
		if excess > 0 {
			archiveDir := filepath.Join(root, ArchiveDirName)
			if err := os.MkdirAll(archiveDir, 0o755); err != nil {
				return fmt.Errorf("rotation: creating archive dir: %w", err)
			}
			toMove := timedFolders[len(timedFolders)-excess:]
			for _, folder := range toMove {
				if err := m.moveIntoArchive(root, archiveDir, folder.name); err != nil {
					return err
				}
			}
		}
	}

	if maxArchived > 0 {
		if err := m.pruneArchive(filepath.Join(root, ArchiveDirName), maxArchived); err != nil {
			return err
		}
	}
	return nil
}

func (m *TimedFolderManager) moveIntoArchive(root, archiveDir, folderName string) error {
	source := filepath.Join(root, folderName)
	target := filepath.Join(archiveDir, folderName)

	if _, err := os.Stat(target); err == nil {
		// Collision: append -{uuid} to the target name (§9 "Open question
		// — move-target collision"; only Archive tolerates the suffix).
		target = filepath.Join(archiveDir, folderName+"-"+uuid.NewString())
	}

	if err := os.Rename(source, target); err != nil {
		return fmt.Errorf("rotation: archiving %q: %w", folderName, err)
	}
	m.logger.Infof("rotation: archived timed folder %q", folderName)
	return nil
}

func (m *TimedFolderManager) pruneArchive(archiveDir string, maxArchived int) error {
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("rotation: reading archive: %w", err)
	}

	var archived []timedEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		date, ok := tryMatchArchivedFolderName(entry.Name())
		if !ok {
			continue
		}
		archived = append(archived, timedEntry{name: entry.Name(), date: date})
	}

	sort.SliceStable(archived, func(i, j int) bool {
		return archived[i].date.After(archived[j].date)
	})

	if len(archived) <= maxArchived {
		return nil
	}

	for _, folder := range archived[maxArchived:] {
		path := filepath.Join(archiveDir, folder.name)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("rotation: pruning archived folder %q: %w", folder.name, err)
		}
		m.logger.Infof("rotation: pruned archived folder %q", folder.name)
	}
	return nil
}

// tryMatchArchivedFolderName recovers the date encoded in an archive-folder
// name, tolerating a "-{uuid}" collision suffix that the plain root-level
// recognizer must reject (§9 asymmetry note).
func tryMatchArchivedFolderName(name string) (time.Time, bool) {
	const tokenLen = len(timedNameLayout)
	if len(name) == tokenLen {
		return TryMatchTimedName(name)
	}
	if len(name) > tokenLen && name[tokenLen] == '-' {
		return TryMatchTimedName(name[:tokenLen])
	}
	return time.Time{}, false
}
