// Package pathutil normalizes path arguments taken from command lines and
// matches them against sensitive-path glob patterns. Nothing here touches the
// filesystem: paths are reasoned about purely as strings.
package pathutil

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

const (
	// homeEnvVar is the $HOME environment variable reference.
	homeEnvVar = "$HOME"
	// homeBraceEnvVar is the ${HOME} environment variable reference.
	homeBraceEnvVar = "${HOME}"
)

// Normalize cleans a path argument lexically. Empty input stays empty.
// "~" and "$HOME" prefixes are left in place since they cannot be resolved.
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// ---------------------------------------------------------------------------
// Glob Matching
// ---------------------------------------------------------------------------

// Matcher matches normalized paths against a fixed set of glob patterns.
// '*' and '?' do not cross '/'; '**' does. Alternatives ({a,b}) and
// character classes ([a-z], [!a-z]) are supported.
//
// A Matcher is immutable and safe for concurrent use. The nil *Matcher
// matches nothing.
type Matcher struct {
	patterns []string
	globs    []glob.Glob
}

// Compile compiles patterns into a Matcher. Every pattern is compiled; the
// first failure is returned.
func Compile(patterns []string) (*Matcher, error) {
	m := &Matcher{
		patterns: append([]string(nil), patterns...),
		globs:    make([]glob.Glob, 0, len(patterns)),
	}
	for _, p := range patterns {
		if p == "" {
			return nil, errors.New("pathutil: empty pattern")
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("pathutil: invalid pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match normalizes p and returns the first pattern it matches.
func (m *Matcher) Match(p string) (string, bool) {
	if m == nil || p == "" {
		return "", false
	}
	cleaned := Normalize(p)
	for i, g := range m.globs {
		if g.Match(cleaned) {
			return m.patterns[i], true
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Dangerous Files
// ---------------------------------------------------------------------------

// dangerousFiles is the list of filenames whose modification can lead to
// code execution or credential exposure.
var dangerousFiles = []string{
	".gitconfig", ".gitmodules", ".bashrc", ".bash_profile", ".bash_login",
	".zshrc", ".zprofile", ".zshenv", ".profile", ".npmrc", ".yarnrc",
	".netrc", ".pypirc", ".cmdpolicy.toml", ".cmdpolicy.yaml", ".cmdpolicy.yml",
}

// dangerousDirectories is the list of directory names whose contents need
// protection.
var dangerousDirectories = []string{".git/hooks", ".ssh", ".config/cmdpolicy"}

// DangerousPatterns returns glob patterns matching every dangerous file and
// the contents of every dangerous directory, both relative to the working
// directory and anywhere below it.
func DangerousPatterns() []string {
	out := make([]string, 0, 2*(len(dangerousFiles)+len(dangerousDirectories)))
	for _, f := range dangerousFiles {
		out = append(out, f, "**/"+f)
	}
	for _, d := range dangerousDirectories {
		out = append(out, d+"/**", "**/"+d+"/**")
	}
	return out
}

// ---------------------------------------------------------------------------
// Path Helpers
// ---------------------------------------------------------------------------

// IsRootOrHome returns true if the argument, after path normalization,
// names the filesystem root, the home directory, or everything directly
// inside either.
func IsRootOrHome(arg string) bool {
	cleaned := Normalize(arg)
	switch cleaned {
	case "/", "~", "/*", "~/*", homeEnvVar, homeBraceEnvVar, homeEnvVar + "/*", homeBraceEnvVar + "/*":
		return true
	}
	// "~/.." and friends escape the home directory; the target cannot be
	// resolved statically.
	for _, prefix := range []string{"~", homeEnvVar, homeBraceEnvVar} {
		if !strings.HasPrefix(arg, prefix) {
			continue
		}
		tail := strings.TrimPrefix(arg, prefix)
		if tail == "" || tail[0] != '/' {
			continue
		}
		for _, seg := range strings.Split(tail, "/") {
			if seg == ".." {
				return true
			}
		}
	}
	return false
}

// ContainsNullByte returns true if the string contains a null byte.
func ContainsNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00')
}
