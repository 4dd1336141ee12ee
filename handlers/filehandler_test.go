package handlers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signature-opensource/ck-monitoring-go/core"
	"github.com/signature-opensource/ck-monitoring-go/rotation"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func encodeText(w io.Writer, value interface{}) error {
	event, ok := value.(*core.LogEvent)
	if !ok {
		_, err := fmt.Fprintf(w, "%v\n", value)
		return err
	}
	_, err := fmt.Fprintf(w, "%s %s\n", event.MonitorID, event.Text)
	return err
}

func TestFileHandlerLifecycle(t *testing.T) {
	root := t.TempDir()
	cfg := FileHandlerConfiguration{
		Path:     root,
		Rotation: rotation.Config{FileNameSuffix: ".ckmon", MaxCountPerFile: 10},
	}
	h := NewFileHandler(cfg, encodeText, testLogger(), nil)
	require.Equal(t, root, h.Identity())

	require.NoError(t, h.Activate())

	evt := core.AcquireEvent("monitor", time.Now().UTC(), time.Now().UTC(), core.LevelInfo, "hello")
	require.NoError(t, h.Handle(evt))
	evt.Release()

	require.NoError(t, h.Deactivate())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "deactivation must finalize the open file")
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestFileHandlerApplyConfigurationRejectsOtherPath(t *testing.T) {
	root := t.TempDir()
	cfg := FileHandlerConfiguration{
		Path:     root,
		Rotation: rotation.Config{FileNameSuffix: ".ckmon", MaxCountPerFile: 10},
	}
	h := NewFileHandler(cfg, encodeText, testLogger(), nil)
	require.NoError(t, h.Activate())
	defer h.Deactivate()

	other := FileHandlerConfiguration{Path: filepath.Join(root, "elsewhere")}
	matched, err := h.ApplyConfiguration(other)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestFileHandlerApplyConfigurationReconfiguresSameIdentity(t *testing.T) {
	root := t.TempDir()
	cfg := FileHandlerConfiguration{
		Path:     root,
		Rotation: rotation.Config{FileNameSuffix: ".ckmon", MaxCountPerFile: 10},
	}
	h := NewFileHandler(cfg, encodeText, testLogger(), nil)
	require.NoError(t, h.Activate())
	defer h.Deactivate()

	updated := cfg
	updated.Rotation.FileNameSuffix = ".log"
	matched, err := h.ApplyConfiguration(updated)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestFileHandlerOnTimerRunsHousekeeping(t *testing.T) {
	root := t.TempDir()
	cfg := FileHandlerConfiguration{
		Path:                root,
		Rotation:            rotation.Config{FileNameSuffix: ".ckmon", MaxCountPerFile: 10},
		HousekeepingMinAge:  time.Hour,
		HousekeepingMaxSize: 1 << 20,
	}
	h := NewFileHandler(cfg, encodeText, testLogger(), nil)
	require.NoError(t, h.Activate())
	defer h.Deactivate()

	require.NoError(t, h.OnTimer(time.Minute))
}
