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

// Package rotation implements the on-disk rotation/compression/archival
// engine for log files: FileOutput (§4.2 of SPEC_FULL.md), driven by a
// single owner (a core.Handler) the same way gollum's producer.File
// drives its fileStateWriterDisk.
package rotation

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signature-opensource/ck-monitoring-go/internal/metrics"
)

// gzipCopyBufferSize is the copy buffer size used when streaming a temp
// file through gzip on finalize (§6 "Gzip format").
const gzipCopyBufferSize = 64 << 10

// EncodeFunc renders a single event onto w. The core treats this as an
// injected callback (§4.2 "write contract": "delegates the actual encoding
// of the event to a subclass-supplied writer").
type EncodeFunc func(w io.Writer, event interface{}) error

// symlinkDisabled is the process-wide once-only latch from §5 "Symlink-
// disabled latch": once a privilege error is observed, no further
// os.Symlink attempt is made by any FileOutput in the process.
var symlinkDisabled int32

// SymlinkDisabled reports whether the process-wide privilege-error latch
// has tripped.
func SymlinkDisabled() bool {
	return atomic.LoadInt32(&symlinkDisabled) != 0
}

func tripSymlinkLatch() bool {
	return atomic.CompareAndSwapInt32(&symlinkDisabled, 0, 1)
}

// FileOutput is the rotation/compression/archival engine described in
// SPEC_FULL.md / spec.md §4.2. A FileOutput owns at most one open file at
// any time (§3 invariant).
type FileOutput struct {
	logger  logrus.FieldLogger
	encode  EncodeFunc
	metrics *metrics.Registry

	rootPath string
	basePath string

	cfg Config

	output          *os.File
	openedTimeToken string
	countRemainder  int

	currentTimedFolder string

	nameGen      UniqueTimedName
	timedFolders *TimedFolderManager
	housekeeper  *Housekeeper
	lastRunPath  string
}

// NewFileOutput builds a FileOutput rooted at rootPath, using encode to
// render each event and logger for diagnostics. reg may be nil (every
// Registry method is then a no-op).
func NewFileOutput(rootPath string, encode EncodeFunc, logger logrus.FieldLogger, reg *metrics.Registry) *FileOutput {
	return &FileOutput{
		logger:       logger,
		encode:       encode,
		metrics:      reg,
		rootPath:     rootPath,
		timedFolders: NewTimedFolderManager(logger),
		housekeeper:  NewHousekeeper(logger, reg),
	}
}

// Initialize computes base_path from root_path and cfg and prepares the
// FileOutput to accept writes. root_path is immutable after the first
// successful call (§3 invariant).
func (f *FileOutput) Initialize(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, err.Error())
	}
	f.cfg = cfg

	folderPerm := os.FileMode(cfg.FolderPermissions)
	if folderPerm == 0 {
		folderPerm = 0o755
	}

	if err := os.MkdirAll(f.rootPath, folderPerm); err != nil {
		f.logger.Errorf("rotation: failed to resolve root %q: %v", f.rootPath, err)
		return fmt.Errorf("rotation: resolving root %q: %w", f.rootPath, err)
	}

	if cfg.TimedFolderEnabled {
		folder, err := f.timedFolders.EnsureCurrentFolder(f.rootPath, f.currentTimedFolder, &f.nameGen, folderPerm)
		if err != nil {
			f.logger.Errorf("rotation: failed to prepare timed folder: %v", err)
			return err
		}
		f.currentTimedFolder = folder
		f.basePath = filepath.Join(f.rootPath, folder)
	} else {
		f.currentTimedFolder = ""
		f.basePath = f.rootPath
	}

	if cfg.WithLastRunSymlink {
		f.lastRunPath = filepath.Join(f.rootPath, cfg.LastRunFileName)
	} else {
		f.lastRunPath = ""
	}

	return nil
}

// Reconfigure applies optional new values (§4.2 "reconfigure").
func (f *FileOutput) Reconfigure(opts ReconfigureOptions) error {
	needsClose := false
	needsReinit := false
	next := f.cfg

	if opts.FileNameSuffix != nil && *opts.FileNameSuffix != next.FileNameSuffix {
		next.FileNameSuffix = *opts.FileNameSuffix
		needsClose = true
	}
	if opts.UseGzipCompression != nil && *opts.UseGzipCompression != next.UseGzipCompression {
		next.UseGzipCompression = *opts.UseGzipCompression
		needsClose = true
	}
	if opts.TimedFolderMode != nil && *opts.TimedFolderMode != next.TimedFolderEnabled {
		next.TimedFolderEnabled = *opts.TimedFolderMode
		needsClose = true
		needsReinit = true
	}
	if opts.MaxCountPerFile != nil {
		if *opts.MaxCountPerFile < next.MaxCountPerFile {
			written := next.MaxCountPerFile - f.countRemainder
			if written > 0 && written >= *opts.MaxCountPerFile {
				needsClose = true
			}
		}
		next.MaxCountPerFile = *opts.MaxCountPerFile
	}
	if opts.WithLastRunSymlink != nil {
		if !*opts.WithLastRunSymlink && next.WithLastRunSymlink && f.lastRunPath != "" {
			_ = os.Remove(f.lastRunPath)
		}
		next.WithLastRunSymlink = *opts.WithLastRunSymlink
	}

	// Close (and finalize) the current file under the OLD configuration
	// before the new one takes effect, so the in-flight file's name and
	// format stay self-consistent.
	if needsClose {
		if _, err := f.Close(false); err != nil {
			f.logger.Warnf("rotation: error closing current file during reconfigure: %v", err)
		}
	}

	f.cfg = next

	if needsReinit {
		return f.Initialize(f.cfg)
	}
	return nil
}

// Deactivate closes the current file (if any) and clears base_path (§3
// invariant: "After deactivate, base_path is cleared").
func (f *FileOutput) Deactivate() error {
	_, err := f.Close(false)
	f.basePath = ""
	return err
}

// Write ensures an open file, renders event through the injected encoder,
// and rotates when the count cap is reached (§4.2 "write contract").
func (f *FileOutput) Write(event interface{}) error {
	if f.output == nil {
		if err := f.openNewFile(); err != nil {
			return err
		}
	}

	if err := f.encode(f.output, event); err != nil {
		return fmt.Errorf("rotation: encoding event: %w", err)
	}

	f.countRemainder--
	if f.countRemainder <= 0 {
		if _, err := f.doCloseCurrentFile(false); err != nil {
			f.logger.Warnf("rotation: error finalizing rotated file: %v", err)
		}
	}
	return nil
}

// openNewFile creates the next temp file exclusively, probing with the
// name generator until a free name is found (§4.1: "the implementation
// probes with a suffix until a free name is found").
func (f *FileOutput) openNewFile() error {
	for {
		token := f.nameGen.Next(time.Now())
		path := filepath.Join(f.basePath, tempFileName(token, f.cfg.FileNameSuffix))

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermOrDefault(f.cfg.FilePermissions))
		if err != nil {
			if os.IsExist(err) {
				continue // probe again; nameGen.Next already advances monotonically
			}
			f.logger.Errorf("rotation: failed to create %q: %v", path, err)
			return fmt.Errorf("rotation: creating file %q: %w", path, err)
		}

		f.output = file
		f.openedTimeToken = token
		f.countRemainder = f.cfg.MaxCountPerFile
		return nil
	}
}

// Close finalizes the current file, if any, and returns the path of the
// produced file (empty if none was produced). forget discards the temp
// file outright regardless of how many entries it holds.
func (f *FileOutput) Close(forget bool) (string, error) {
	return f.doCloseCurrentFile(forget)
}

func (f *FileOutput) doCloseCurrentFile(forgetCurrentFile bool) (string, error) {
	if f.output == nil {
		return "", nil
	}

	file := f.output
	token := f.openedTimeToken
	tempPath := file.Name()
	wroteNothing := f.countRemainder == f.cfg.MaxCountPerFile

	f.output = nil
	f.openedTimeToken = ""

	if err := file.Close(); err != nil {
		f.logger.Warnf("rotation: error closing %q: %v", tempPath, err)
	}

	if forgetCurrentFile || wroteNothing {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			f.logger.Warnf("rotation: failed to remove discarded temp file %q: %v", tempPath, err)
		}
		f.metrics.IncFilesForgotten()
		return "", nil
	}

	finalPath, err := f.finalize(tempPath, token)
	if err != nil {
		return "", err
	}

	f.metrics.IncFilesFinalized()
	f.maybeUpdateLastRunSymlink(finalPath)
	return finalPath, nil
}

func (f *FileOutput) finalize(tempPath, token string) (string, error) {
	if !f.cfg.UseGzipCompression {
		return f.finalizeRename(tempPath, token)
	}
	return f.finalizeGzip(tempPath, token)
}

func (f *FileOutput) finalizeRename(tempPath, token string) (string, error) {
	finalPath := filepath.Join(f.basePath, finalFileName(token, f.cfg.FileNameSuffix))
	// Collision (another process raced us to the same token): os.Rename
	// would silently replace the target, so probe forward with a fresh
	// token rather than clobbering existing data.
	for {
		if _, err := os.Lstat(finalPath); err != nil {
			break
		}
		token = f.nameGen.Next(time.Now())
		finalPath = filepath.Join(f.basePath, finalFileName(token, f.cfg.FileNameSuffix))
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		f.logger.Errorf("rotation: failed to finalize %q: %v", tempPath, err)
		return "", fmt.Errorf("rotation: finalizing %q: %w", tempPath, err)
	}
	return finalPath, nil
}

func (f *FileOutput) finalizeGzip(tempPath, token string) (string, error) {
	source, err := os.Open(tempPath)
	if err != nil {
		return "", fmt.Errorf("rotation: reopening %q for compression: %w", tempPath, err)
	}
	defer source.Close()

	finalPath := filepath.Join(f.basePath, finalFileName(token, f.cfg.FileNameSuffix))
	target, err := os.OpenFile(finalPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermOrDefault(f.cfg.FilePermissions))
	if err != nil {
		f.logger.Errorf("rotation: failed to create gzip target %q: %v", finalPath, err)
		return "", fmt.Errorf("rotation: creating gzip target %q: %w", finalPath, err)
	}

	writer, _ := gzip.NewWriterLevel(target, gzip.BestCompression)
	buf := make([]byte, gzipCopyBufferSize)
	_, copyErr := io.CopyBuffer(writer, source, buf)

	flushErr := writer.Close()
	closeErr := target.Close()

	if copyErr != nil || flushErr != nil || closeErr != nil {
		// Temp file must remain so data isn't lost (§7 "Gzip finalization
		// failure").
		err := firstNonNil(copyErr, flushErr, closeErr)
		f.logger.Errorf("rotation: gzip compression of %q failed: %v", tempPath, err)
		_ = os.Remove(finalPath)
		return "", fmt.Errorf("rotation: compressing %q: %w", tempPath, err)
	}

	if err := os.Remove(tempPath); err != nil {
		f.logger.Warnf("rotation: failed to remove source %q after compression: %v", tempPath, err)
	}
	return finalPath, nil
}

func (f *FileOutput) maybeUpdateLastRunSymlink(finalPath string) {
	if !f.cfg.WithLastRunSymlink || f.lastRunPath == "" {
		return
	}
	if SymlinkDisabled() {
		return
	}

	_ = os.Remove(f.lastRunPath)
	if err := os.Symlink(finalPath, f.lastRunPath); err != nil {
		if isPrivilegeError(err) {
			if tripSymlinkLatch() {
				f.logger.Warn("rotation: disabling LastRun symlink process-wide: insufficient privilege")
			}
			return
		}
		f.logger.Errorf("rotation: failed to create LastRun symlink: %v", err)
	}
}

// RunTimedFolderCleanup runs the archive-rollover/archive-pruning policy
// (§4.2 "timed-folder cleanup").
func (f *FileOutput) RunTimedFolderCleanup() error {
	if !f.cfg.TimedFolderEnabled {
		return nil
	}
	return f.timedFolders.RunCleanup(f.rootPath, f.cfg.MaxCurrentLogFolderCount, f.cfg.MaxArchivedLogFolderCount, f.currentTimedFolder)
}

// RunFileHousekeeping enforces age/size retention (§4.2 "file
// housekeeping").
func (f *FileOutput) RunFileHousekeeping(minAge time.Duration, maxTotalBytes int64) error {
	var skip string
	if f.output != nil {
		skip = f.output.Name()
	}
	return f.housekeeper.Run(f.rootPath, f.basePath, skip, f.cfg.FileNameSuffix, minAge, maxTotalBytes)
}

func filePermOrDefault(perm uint32) os.FileMode {
	if perm == 0 {
		return 0o644
	}
	return os.FileMode(perm)
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
