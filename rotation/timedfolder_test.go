package rotation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S3 — Archive cap: repeating S2's rollover eight more times must never let
// the archive grow past max_archived_log_folder_count, oldest folders first.
func TestArchiveCapAcrossRepeatedRollovers(t *testing.T) {
	root := t.TempDir()
	mgr := NewTimedFolderManager(testLogger())
	var nameGen UniqueTimedName

	const maxCurrent = 2
	const maxArchived = 3

	var currentBase string
	for i := 0; i < 10; i++ {
		folder, err := mgr.EnsureCurrentFolder(root, "", &nameGen, 0o755)
		require.NoError(t, err)
		currentBase = folder

		require.NoError(t, mgr.RunCleanup(root, maxCurrent, maxArchived, currentBase))
	}
	// Final cleanup with no folder excluded, so the last current folder is
	// itself considered for archival like every earlier one.
	require.NoError(t, mgr.RunCleanup(root, maxCurrent, maxArchived, ""))

	archiveDir := filepath.Join(root, ArchiveDirName)
	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)

	var archivedCount int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := tryMatchArchivedFolderName(e.Name()); ok {
			archivedCount++
		}
	}
	assert.LessOrEqual(t, archivedCount, maxArchived, "archive must never exceed its cap")
	assert.Equal(t, maxArchived, archivedCount, "ten rollovers must have filled the archive to its cap")
}

func TestEnsureCurrentFolderPreservesExisting(t *testing.T) {
	root := t.TempDir()
	mgr := NewTimedFolderManager(testLogger())
	var nameGen UniqueTimedName

	first, err := mgr.EnsureCurrentFolder(root, "", &nameGen, 0o755)
	require.NoError(t, err)

	again, err := mgr.EnsureCurrentFolder(root, first, &nameGen, 0o755)
	require.NoError(t, err)
	assert.Equal(t, first, again, "an existing, still-present folder must be reused")
}
