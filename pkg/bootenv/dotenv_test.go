package bootenv_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"nof0-api/pkg/bootenv"
)

// LoadDotenvOnce guards its search with a package-level sync.Once, so only
// the first call in a test binary actually runs loadDotenv; later calls
// (here or in another test) are no-ops regardless of env vars. NO_DOTENV is
// checked first thing inside that single run, so this is the one behavior
// that can be asserted deterministically without a subprocess.
func TestLoadDotenvOnceRespectsNoDotenv(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	os.Unsetenv("BOOTENV_TEST_VAR")

	bootenv.LoadDotenvOnce()

	_, ok := os.LookupEnv("BOOTENV_TEST_VAR")
	assert.False(t, ok, "NO_DOTENV=1 must skip the .env search entirely")
}
