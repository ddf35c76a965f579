package cmdpolicy

import (
	"testing"

	"github.com/zhangyunhao116/cmdpolicy/internal/shell"
)

func TestCompileAllowPattern(t *testing.T) {
	tests := []struct {
		pattern string
		wantErr bool
	}{
		{"ls", false},
		{"git status {-s,-sb}", false},
		{"kubectl get [!-]*", false},
		{"cat 'My File.txt'", false},
		{"", true},
		{"   ", true},
		{"ls; rm", true},
		{"ls | wc", true},
		{"ls > out", true},
		{"echo 'unterminated", true},
		{"ls [", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			_, err := compileAllowPattern(tt.pattern)
			if (err != nil) != tt.wantErr {
				t.Errorf("compileAllowPattern(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
			}
		})
	}
}

func TestAllowPatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		argv    []string
		want    bool
	}{
		{"ls", []string{"ls"}, true},
		{"ls", []string{"ls", "-la"}, false},
		{"ls -[alh][alh]", []string{"ls", "-la"}, true},
		{"ls -[alh][alh]", []string{"ls", "-lR"}, false},
		{"kubectl get [!-]*", []string{"kubectl", "get", "pods"}, true},
		{"kubectl get [!-]*", []string{"kubectl", "get", "--raw"}, false},
		{"git status {-s,-sb}", []string{"git", "status", "-sb"}, true},
		{"git status {-s,-sb}", []string{"git", "status", "-v"}, false},
		{"cat 'My File.txt'", []string{"cat", "My File.txt"}, true},
	}
	for _, tt := range tests {
		ap, err := compileAllowPattern(tt.pattern)
		if err != nil {
			t.Fatalf("compileAllowPattern(%q) error: %v", tt.pattern, err)
		}
		if got := ap.match(tt.argv); got != tt.want {
			t.Errorf("%q.match(%q) = %v, want %v", tt.pattern, tt.argv, got, tt.want)
		}
	}
}

func TestLiteralArgv(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"ls -la", true},
		{"'ls' \"-la\"", true},
		{"FOO=1 ls", false},
		{"ls | cat", false},
		{"ls; pwd", false},
		{"(ls)", false},
		{"ls > out", false},
		{"ls $DIR", false},
		{"ls *.go", false},
		{"ls '*.go'", true},
		{"", false},
		{"X=1", false},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			n, err := shell.Parse(tt.command)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.command, err)
			}
			if _, got := literalArgv(n); got != tt.want {
				t.Errorf("literalArgv(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

// Quoting does not defeat the allowlist: the literal words are matched.
func TestAllowlistQuotedWords(t *testing.T) {
	if d := Decide(`'git' "status"`); d != Auto {
		t.Errorf("Decide(quoted git status) = %v, want Auto", d)
	}
}
