// Package guard switches the process into test mode when imported for its
// side effect by test binaries.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FUELSTATION_TEST_MODE") == "" {
			_ = os.Setenv("FUELSTATION_TEST_MODE", "1")
		}
	})
}
