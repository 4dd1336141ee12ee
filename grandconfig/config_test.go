package grandconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signature-opensource/ck-monitoring-go/core"
	"github.com/signature-opensource/ck-monitoring-go/handlers"
)

func TestHandlerSpecToHandlerConfigurationFile(t *testing.T) {
	spec := HandlerSpec{
		Type:                     "file",
		Path:                     "/var/log/app",
		FileNameSuffix:           ".ckmon",
		MaxCountPerFile:          500,
		HousekeepingMinAgeSeconds: 3600,
	}
	cfg, err := spec.ToHandlerConfiguration()
	require.NoError(t, err)

	fc, ok := cfg.(handlers.FileHandlerConfiguration)
	require.True(t, ok)
	assert.Equal(t, "/var/log/app", fc.Identity())
	assert.Equal(t, ".ckmon", fc.Rotation.FileNameSuffix)
	assert.Equal(t, 500, fc.Rotation.MaxCountPerFile)
	assert.Equal(t, time.Hour, fc.HousekeepingMinAge)
}

func TestHandlerSpecToHandlerConfigurationConsole(t *testing.T) {
	spec := HandlerSpec{Type: "console", UseStdErr: true}
	cfg, err := spec.ToHandlerConfiguration()
	require.NoError(t, err)

	cc, ok := cfg.(handlers.ConsoleHandlerConfiguration)
	require.True(t, ok)
	assert.True(t, cc.UseStdErr)
}

func TestHandlerSpecToHandlerConfigurationUnknownType(t *testing.T) {
	_, err := HandlerSpec{Type: "carrier-pigeon"}.ToHandlerConfiguration()
	assert.Error(t, err)
}

func TestFileConfigToGrandOutputConfigurationFiltersByLevel(t *testing.T) {
	cfg := FileConfig{
		MinimumLevel:         "Warn",
		TimerDurationSeconds: 30,
		Handlers: []HandlerSpec{
			{Type: "console"},
			{Type: "bogus"},
		},
	}

	out, errs := cfg.ToGrandOutputConfiguration()
	require.Len(t, errs, 1, "the bogus handler spec must be reported, not silently dropped")
	require.Len(t, out.Handlers, 1)
	assert.Equal(t, 30*time.Second, out.TimerDuration)

	require.NotNil(t, out.Filter)
	assert.False(t, out.Filter(&core.LogEvent{Level: core.LevelInfo}))
	assert.True(t, out.Filter(&core.LogEvent{Level: core.LevelWarn}))
	assert.True(t, out.Filter(&core.LogEvent{Level: core.LevelError}))
}

func TestFileConfigToGrandOutputConfigurationNoFilterWhenLevelUnset(t *testing.T) {
	out, errs := FileConfig{}.ToGrandOutputConfiguration()
	assert.Empty(t, errs)
	assert.Nil(t, out.Filter)
}

func TestConfigPathHonorsConfigFileField(t *testing.T) {
	c := &FileConfig{}
	_, ok := c.ConfigPath()
	assert.False(t, ok, "an empty ConfigFile must report no path")

	c.ConfigFile = "/etc/ck-monitoring/config.yaml"
	path, ok := c.ConfigPath()
	assert.True(t, ok)
	assert.Equal(t, "/etc/ck-monitoring/config.yaml", path)
}
