// interpreter.go verifies that script interpreters are allowed and exist on
// the system. It uses exec.LookPath to search $PATH, failing fast when a
// job's interpreter is missing rather than partway through a run.
package executor

import (
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"sync"
)

// ValidInterpreters is the allowlist of script interpreters.
var ValidInterpreters = []string{"bash", "sh", "python3", "python", "perl"}

// AllowedInterpreter reports whether name is on the allowlist. It does not
// check that the binary exists.
func AllowedInterpreter(name string) bool {
	return slices.Contains(ValidInterpreters, name)
}

// InterpreterCache caches interpreter paths to avoid repeated lookups.
type InterpreterCache struct {
	mu    sync.RWMutex
	cache map[string]string
}

// NewInterpreterCache creates a new interpreter path cache.
func NewInterpreterCache() *InterpreterCache {
	return &InterpreterCache{
		cache: make(map[string]string),
	}
}

// VerifyInterpreter returns the absolute path of interpreter. It fails if
// the interpreter is not on the allowlist or not in PATH.
func (c *InterpreterCache) VerifyInterpreter(interpreter string) (string, error) {
	if !AllowedInterpreter(interpreter) {
		return "", fmt.Errorf("invalid interpreter: %s (allowed: %s)", interpreter, strings.Join(ValidInterpreters, ", "))
	}

	c.mu.RLock()
	if path, ok := c.cache[interpreter]; ok {
		c.mu.RUnlock()
		return path, nil
	}
	c.mu.RUnlock()

	path, err := exec.LookPath(interpreter)
	if err != nil {
		return "", fmt.Errorf("interpreter '%s' not found in PATH: %w", interpreter, err)
	}

	c.mu.Lock()
	c.cache[interpreter] = path
	c.mu.Unlock()

	return path, nil
}

var globalCache = NewInterpreterCache()

// VerifyInterpreter checks interpreter using a package-level cache.
func VerifyInterpreter(interpreter string) (string, error) {
	return globalCache.VerifyInterpreter(interpreter)
}
