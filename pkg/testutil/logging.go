package testutil

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Test logs are discarded unless running verbosely. TOKADAPT_TEST_LOG_LEVEL
// overrides the default trace level.
func init() {
	var isVerbose bool
	for _, arg := range os.Args {
		if arg == "-test.v=true" || arg == "-test.v" {
			isVerbose = true
		}
	}

	level := logrus.TraceLevel
	if parsed, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("TOKADAPT_TEST_LOG_LEVEL"))); err == nil {
		level = parsed
	}
	logrus.SetLevel(level)

	if !isVerbose {
		logrus.StandardLogger().Out = io.Discard
	}
}

// DisableLogging discards log output until reset is called.
func DisableLogging() (reset func()) {
	originalLogOutput := logrus.StandardLogger().Out
	logrus.StandardLogger().Out = io.Discard
	return func() {
		logrus.StandardLogger().Out = originalLogOutput
	}
}
