package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/pipegraph/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing, with debug
// logs captured in the returned buffer.
func SetupAppTest(t *testing.T, appConfig *Config) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	appConfig.LogLevel = "debug"
	testApp, err := NewApp(logBuffer, appConfig)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("PIPEGRAPH_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
