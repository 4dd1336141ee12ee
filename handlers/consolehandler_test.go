package handlers

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signature-opensource/ck-monitoring-go/core"
)

func TestConsoleHandlerWritesEncodedEvent(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, encodeText)
	require.Equal(t, "console", h.Identity())

	evt := core.AcquireEvent("monitor", time.Now().UTC(), time.Now().UTC(), core.LevelWarn, "careful")
	require.NoError(t, h.Handle(evt))
	evt.Release()

	assert.Contains(t, buf.String(), "careful")
}

func TestConsoleHandlerApplyConfigurationAcceptsAnyInstance(t *testing.T) {
	h := NewConsoleHandler(&bytes.Buffer{}, encodeText)
	matched, err := h.ApplyConfiguration(ConsoleHandlerConfiguration{UseStdErr: true})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = h.ApplyConfiguration(FileHandlerConfiguration{Path: "x"})
	require.NoError(t, err)
	assert.False(t, matched)
}
