package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// ensureTestMode keeps the binaries from dialing PostgreSQL or Redis and
// points the config at throwaway endpoints.
func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("FUELSTATION_TEST_MODE", "1")
		if os.Getenv("PG_AUTO_MIGRATE") == "" {
			_ = os.Setenv("PG_AUTO_MIGRATE", "false")
		}
		if os.Getenv("REDIS_ADDR") == "" {
			_ = os.Setenv("REDIS_ADDR", "127.0.0.1:0")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
