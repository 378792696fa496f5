package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())

	Load("")

	assert.Equal(t, "vibeboard.db", viper.GetString("db.dsn"))
	assert.Equal(t, ":8080", viper.GetString("server.addr"))
	assert.Equal(t, 3, viper.GetInt("orchestrator.max_parallel"))
	assert.Equal(t, 300*time.Second, SyncInterval())
	assert.True(t, viper.GetBool("github.monitor_enabled"))
}

func TestLoadEnvOverride(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())
	t.Setenv("VIBEBOARD_SERVER_ADDR", ":9090")
	t.Setenv("VIBEBOARD_ORCHESTRATOR_MAX_PARALLEL", "5")

	Load("")

	assert.Equal(t, ":9090", viper.GetString("server.addr"))
	assert.Equal(t, 5, viper.GetInt("orchestrator.max_parallel"))
}

func TestValidate(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())
	Load("")
	require.NoError(t, Validate())

	viper.Set("orchestrator.max_parallel", 0)
	err := Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallel")
}

func TestSyncIntervalAcceptsBareSeconds(t *testing.T) {
	resetViper(t)
	viper.Set("github.sync_interval", 60)
	assert.Equal(t, 60*time.Second, SyncInterval())

	viper.Set("github.sync_interval", "90s")
	assert.Equal(t, 90*time.Second, SyncInterval())
}

func TestSlackDefaultFollowsToken(t *testing.T) {
	resetViper(t)
	t.Chdir(t.TempDir())
	t.Setenv("SLACK_BOT_USER_TOKEN", "xoxb-test")

	Load("")

	assert.True(t, viper.GetBool("notifications.slack.enabled"))
	assert.Equal(t, "#general", viper.GetString("notifications.slack.channel"))
}
