package testutil

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const logLevelEnv = "BAGEL_TEST_LOG_LEVEL"

// Logs are discarded unless the test binary runs verbosely.
func init() {
	level := logrus.TraceLevel
	if parsed, err := logrus.ParseLevel(os.Getenv(logLevelEnv)); err == nil {
		level = parsed
	}
	logrus.SetLevel(level)

	if !isVerbose() {
		logrus.StandardLogger().SetOutput(io.Discard)
	}
}

func isVerbose() bool {
	for _, arg := range os.Args {
		if arg == "-test.v" || strings.HasPrefix(arg, "-test.v=true") {
			return true
		}
	}
	return false
}

// CaptureLogs records every entry written to the standard logger until the
// test ends.
func CaptureLogs(t *testing.T) *test.Hook {
	hook := test.NewLocal(logrus.StandardLogger())
	t.Cleanup(func() {
		logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	})
	return hook
}
