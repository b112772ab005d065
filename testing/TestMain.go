package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("INTRANET_TEST_MODE", "1")
		if os.Getenv("SESSION_TTL") == "" {
			_ = os.Setenv("SESSION_TTL", "1h")
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
