// Package envutil reads and edits environment lists in os.Environ form.
package envutil

import (
	"strings"
)

// Lookup returns the value of key in env. When key appears more than once the
// last entry wins, matching how exec.Cmd resolves duplicates.
func Lookup(env []string, key string) (string, bool) {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):], true
		}
	}
	return "", false
}

// Set returns a copy of env with key set to value. Existing entries for key
// are dropped and the new entry is appended.
func Set(env []string, key, value string) []string {
	prefix := key + "="
	result := make([]string, 0, len(env)+1)
	for _, e := range env {
		if !strings.HasPrefix(e, prefix) {
			result = append(result, e)
		}
	}
	return append(result, prefix+value)
}
