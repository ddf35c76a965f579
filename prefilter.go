package cmdpolicy

import (
	"regexp"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// The pre-filter is a cheap first-pass reject that runs before parsing. It
// never grants Allowed; a command that survives it is still fully classified.
var (
	stackedSemicolons = regexp.MustCompile(`;\s*;`)
	stackedChaining   = regexp.MustCompile(`(&&|\|\|)\s*(&&|\|\|)`)
	pathTraversal     = regexp.MustCompile(`\.\.[/\\]`)
)

// prefilter returns a description of the first suspicious shape in command.
func prefilter(command string, maxLength int) (string, bool) {
	if len(command) > maxLength {
		return "command longer than " + strconv.Itoa(maxLength) + " bytes", true
	}
	for i := 0; i < len(command); i++ {
		c := command[i]
		if (c < 0x20 && c != '\t' && c != '\n' && c != '\r') || c == 0x7f {
			return "control character at offset " + strconv.Itoa(i), true
		}
	}
	switch {
	case stackedSemicolons.MatchString(command):
		return "stacked ';;'", true
	case stackedChaining.MatchString(command):
		return "stacked '&&' or '||'", true
	case pathTraversal.MatchString(command):
		return "path traversal", true
	}
	if !utf8.ValidString(command) {
		return "invalid UTF-8", true
	}
	if !norm.NFKC.IsNormalString(command) {
		return "unicode compatibility characters", true
	}
	return "", false
}
