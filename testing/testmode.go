// Package testing puts the process in test mode when imported, so that
// entry points and request logging stay quiet under go test.
package testing

import "os"

func init() {
	if os.Getenv("BACKOFFICE_TEST_MODE") == "" {
		_ = os.Setenv("BACKOFFICE_TEST_MODE", "1")
	}
}
