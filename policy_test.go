package cmdpolicy

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestDefaultPolicyValid(t *testing.T) {
	p := DefaultPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("DefaultPolicy().Validate() error: %v", err)
	}
	if p.MaxDepth != DefaultMaxDepth || p.MaxLength != DefaultMaxLength {
		t.Errorf("limits = %d/%d", p.MaxDepth, p.MaxLength)
	}
}

func TestDefaultIndirectExecutorsUnion(t *testing.T) {
	got := DefaultPolicy().IndirectExecutors
	for _, name := range []string{
		"sh", "bash", "zsh", "python", "python3", "perl", "ruby", "crontab", "at",
		"systemctl", "service", "sudo", "su", "env", "printenv", "eval", "xargs",
		"base64", "openssl", "printf",
		"dash", "ksh", "fish", "csh", "tcsh", "php", "lua", "exec", "command",
		"builtin", "source", ".", "nohup", "time", "timeout", "nice", "ionice",
		"stdbuf", "setsid", "chroot", "doas", "pkexec", "runuser", "nsenter",
		"unshare", "watch", "flock", "script", "busybox", "ssh", "strace",
		"ltrace", "gdb", "batch", "awk", "gawk", "mawk", "nawk",
	} {
		if !slices.Contains(got, name) {
			t.Errorf("default indirect executors missing %q", name)
		}
	}
}

func TestPolicyValidateAggregates(t *testing.T) {
	p := DefaultPolicy()
	p.MaxDepth = 0
	p.MaxLength = -1
	p.AlwaysDeny = []string{""}
	p.DenyArgs = map[string][]string{"npm": {""}}

	err := p.Validate()
	if !errors.Is(err, ErrPolicyInvalid) {
		t.Fatalf("Validate() = %v, want ErrPolicyInvalid", err)
	}
	msg := err.Error()
	for _, want := range []string{"MaxDepth", "MaxLength", "AlwaysDeny[0]", `DenyArgs["npm"][0]`} {
		if !strings.Contains(msg, want) {
			t.Errorf("Validate() error %q missing %q", msg, want)
		}
	}
	if n := strings.Count(msg, "; "); n != 3 {
		t.Errorf("Validate() joined %d problems, want 4: %q", n+1, msg)
	}
}

func TestPolicyCloneIsDeep(t *testing.T) {
	p := DefaultPolicy()
	p.DenyArgs = map[string][]string{"npm": {"publish"}}
	cp := p.Clone()

	cp.Allowlist[0] = "changed"
	cp.IndirectExecutors = append(cp.IndirectExecutors[:0], "x")
	cp.DenyArgs["npm"][0] = "changed"
	cp.DenyArgs["yarn"] = nil

	if p.Allowlist[0] == "changed" {
		t.Error("Clone shares Allowlist")
	}
	if p.IndirectExecutors[0] == "x" {
		t.Error("Clone shares IndirectExecutors")
	}
	if p.DenyArgs["npm"][0] != "publish" {
		t.Error("Clone shares DenyArgs values")
	}
	if _, ok := p.DenyArgs["yarn"]; ok {
		t.Error("Clone shares DenyArgs map")
	}
	if len(cp.Rules) != len(p.Rules) {
		t.Errorf("Clone dropped rules: %d vs %d", len(cp.Rules), len(p.Rules))
	}

	var nilPolicy *Policy
	if nilPolicy.Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}

func TestCompiledIsSensitive(t *testing.T) {
	c, err := compile(DefaultPolicy())
	if err != nil {
		t.Fatalf("compile() error: %v", err)
	}
	tests := []struct {
		path string
		want bool
	}{
		{"/etc", true},
		{"/etc/passwd", true},
		{"/etc/systemd/system/x.service", true},
		{"/home/me/x.service", true},
		{"job.cron", true},
		{"/bin/ls", true},
		{"/usr/sbin/sshd", true},
		{"/boot/vmlinuz", true},
		{"/var/spool/cron/crontabs/root", true},
		{"/dev/sda", true},
		{"/dev/null", false},
		{"/dev/stderr", false},
		{"/dev/fd/2", false},
		{"~/.bashrc", true},
		{"/root/.zshrc", true},
		{".ssh/authorized_keys", true},
		{"/home/me/.ssh/config", true},
		{".git/hooks/pre-commit", true},
		{"/tmp/out.txt", false},
		{"build.log", false},
		{"/usr/local/bin/tool", false},
		{"", false},
	}
	for _, tt := range tests {
		_, got := c.isSensitive(tt.path)
		if got != tt.want {
			t.Errorf("isSensitive(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsEnvName(t *testing.T) {
	for s, want := range map[string]bool{
		"PATH": true, "_x": true, "LD_PRELOAD": true, "A1": true,
		"": false, "1A": false, "A-B": false, "A B": false,
	} {
		if got := isEnvName(s); got != want {
			t.Errorf("isEnvName(%q) = %v, want %v", s, got, want)
		}
	}
}
