package pathutil

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/", "/"},
		{"///", "/"},
		{"/etc//passwd", "/etc/passwd"},
		{"/etc/./passwd", "/etc/passwd"},
		{"/tmp/../etc/passwd", "/etc/passwd"},
		{"~/.bashrc", "~/.bashrc"},
		{"build/", "build"},
		{"./x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Matcher
// ---------------------------------------------------------------------------

func TestMatcher(t *testing.T) {
	m, err := Compile([]string{
		"/etc",
		"/etc/**",
		"**.service",
		"/bin/**",
		"/dev/fd/*",
		"{/dev/null,/dev/zero}",
		"**/.bashrc",
	})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	tests := []struct {
		path    string
		want    bool
		pattern string
	}{
		{"/etc/passwd", true, "/etc/**"},
		{"/etc", true, "/etc"},
		{"//etc///shadow", true, "/etc/**"},
		{"/etc/ssh/sshd_config", true, "/etc/**"},
		{"/etcetera", false, ""},
		{"/lib/systemd/system/evil.service", true, "**.service"},
		{"evil.service", true, "**.service"},
		{"/bin/ls", true, "/bin/**"},
		{"/usr/local/bin/tool", false, ""},
		{"/dev/fd/1", true, "/dev/fd/*"},
		{"/dev/fd/1/x", false, ""},
		{"/dev/null", true, "{/dev/null,/dev/zero}"},
		{"~/.bashrc", true, "**/.bashrc"},
		{"/home/dev/.bashrc", true, "**/.bashrc"},
		{"/tmp/out.txt", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			pattern, ok := m.Match(tt.path)
			if ok != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.path, ok, tt.want)
			}
			if pattern != tt.pattern {
				t.Errorf("Match(%q) pattern = %q, want %q", tt.path, pattern, tt.pattern)
			}
		})
	}
}

func TestMatcherNil(t *testing.T) {
	var m *Matcher
	if _, ok := m.Match("/etc/passwd"); ok {
		t.Error("nil Matcher should match nothing")
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := Compile([]string{"/etc/**", ""}); err == nil {
		t.Error("Compile with empty pattern should fail")
	}
	_, err := Compile([]string{"[abc"})
	if err == nil {
		t.Fatal("Compile with unclosed class should fail")
	}
	if !strings.Contains(err.Error(), "[abc") {
		t.Errorf("error %q should name the pattern", err)
	}
}

// ---------------------------------------------------------------------------
// Dangerous files
// ---------------------------------------------------------------------------

func TestDangerousPatterns(t *testing.T) {
	m, err := Compile(DangerousPatterns())
	if err != nil {
		t.Fatalf("DangerousPatterns() do not compile: %v", err)
	}
	for _, p := range []string{
		".bashrc",
		"~/.bashrc",
		"/root/.zshrc",
		"~/.ssh/authorized_keys",
		".ssh/config",
		".git/hooks/pre-commit",
		"/srv/repo/.git/hooks/post-checkout",
		".cmdpolicy.toml",
		"sub/.cmdpolicy.yaml",
		"/srv/repo/.cmdpolicy.yml",
		"~/.config/cmdpolicy/policy.toml",
	} {
		if _, ok := m.Match(p); !ok {
			t.Errorf("%q should match a dangerous pattern", p)
		}
	}
	for _, p := range []string{"README.md", "src/.bashrc.bak", "/tmp/ssh/x"} {
		if pattern, ok := m.Match(p); ok {
			t.Errorf("%q unexpectedly matched %q", p, pattern)
		}
	}
}

// ---------------------------------------------------------------------------
// IsRootOrHome
// ---------------------------------------------------------------------------

func TestIsRootOrHome(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"/", true},
		{"//", true},
		{"/.", true},
		{"/*", true},
		{"~", true},
		{"~/", true},
		{"~/*", true},
		{"$HOME", true},
		{"${HOME}", true},
		{"$HOME/*", true},
		{"~/../", true},
		{"$HOME/../other", true},
		{"~/..cache", false},
		{"/tmp", false},
		{"~/project", false},
		{"./build", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsRootOrHome(tt.input); got != tt.want {
				t.Errorf("IsRootOrHome(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestContainsNullByte(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"hello", false},
		{"", false},
		{"hel\x00lo", true},
		{"\x00", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ContainsNullByte(tt.input); got != tt.want {
				t.Errorf("ContainsNullByte(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
