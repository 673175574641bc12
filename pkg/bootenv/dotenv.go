// Package bootenv loads a trader deployment's .env file once at process
// boot, before any configuration or API key is read from the environment.
package bootenv

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenvOnce walks upward from this source file (or from $ENV_FILE, if
// set) looking for a .env to load into the process environment. The first
// call wins; later calls in the same process are no-ops. Existing
// environment variables are left untouched unless DOTENV_OVERLOAD=1 is set,
// and the whole search is skipped when NO_DOTENV=1 — useful in deployments
// where secrets are injected directly rather than via a file.
func LoadDotenvOnce() {
	dotenvOnce.Do(func() {
		loadDotenv()
	})
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}

	overload := os.Getenv("DOTENV_OVERLOAD") == "1"
	load := func(paths ...string) {
		if overload {
			_ = godotenv.Overload(paths...)
		} else {
			_ = godotenv.Load(paths...)
		}
	}

	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		load(envFile)
		return
	}

	if _, file, _, ok := runtime.Caller(0); ok {
		dir := filepath.Dir(file)
		for i := 0; i < 8; i++ {
			load(filepath.Join(dir, ".env"))
			if repoRootMarker(filepath.Join(dir, "go.mod")) || repoRootMarker(filepath.Join(dir, ".git")) {
				return
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
		return
	}

	load(".env")
}

func repoRootMarker(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
