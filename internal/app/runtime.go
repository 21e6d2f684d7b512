package app

import (
	"os"
	"sync"
)

const testModeEnv = "BACKOFFICE_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether BACKOFFICE_TEST_MODE=1 was set when first asked.
// Entry points return early and the router skips request logging.
func InTestMode() bool {
	return testMode()
}
