package cmdpolicy

import (
	"strings"
	"testing"
)

func TestDefaultRulesUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, r := range DefaultRules() {
		if r.Binary == "" || r.Rule == "" || r.Predicate == nil {
			t.Errorf("incomplete rule: %+v", r)
		}
		if seen[r.Binary] {
			t.Errorf("duplicate rule for %q", r.Binary)
		}
		seen[r.Binary] = true
	}
}

func TestRmPredicate(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"file.txt"}, false},
		{[]string{"-i", "file.txt"}, false},
		{[]string{"-v", "a", "b"}, false},
		{[]string{"-rf", "/"}, true},
		{[]string{"-R", "dir"}, true},
		{[]string{"-f", "x"}, true},
		{[]string{"-vr", "x"}, true},
		{[]string{"--recursive", "x"}, true},
		{[]string{"--force", "x"}, true},
		{[]string{"--recursiv", "/"}, true},
		{[]string{"--r", "/"}, true},
		{[]string{"--forc", "x"}, true},
		{[]string{"--verbose", "x"}, false},
		{[]string{"--", "-rf"}, false},
	}
	for _, tt := range tests {
		if _, got := rmPredicate(tt.args); got != tt.want {
			t.Errorf("rmPredicate(%q) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestGitPredicate(t *testing.T) {
	tests := []struct {
		args   []string
		reason string
	}{
		{[]string{"status"}, ""},
		{[]string{"log", "--oneline"}, ""},
		{[]string{"diff", "HEAD~1"}, ""},
		{[]string{"push", "origin", "main"}, ""},
		{[]string{"reset", "--soft", "HEAD~1"}, ""},
		{[]string{"clean", "-n"}, ""},
		{[]string{"checkout", "-f", "main"}, ""},
		{[]string{"--no-pager", "log"}, ""},
		{[]string{"-C", "reset", "status"}, ""},
		{nil, ""},
		{[]string{"reset", "--hard", "HEAD~1"}, "destructive git reset --hard"},
		{[]string{"clean", "-fdx"}, "destructive git clean -f"},
		{[]string{"clean", "--force"}, "destructive git clean -f"},
		{[]string{"clean", "--forc"}, "destructive git clean -f"},
		{[]string{"reset", "--har"}, "destructive git reset --hard"},
		{[]string{"push", "--forc"}, "destructive git push --force"},
		{[]string{"push", "--mirr", "backup"}, "destructive git push --force"},
		{[]string{"push", "-f"}, "destructive git push --force"},
		{[]string{"push", "--force-with-lease"}, "destructive git push --force"},
		{[]string{"push", "--mirror", "backup"}, "destructive git push --force"},
		{[]string{"push", "origin", "+main:main"}, "destructive git push --force"},
		{[]string{"--git-dir", ".git", "push", "--force"}, "destructive git push --force"},
		{[]string{"-c", "core.hooksPath=/tmp", "commit"}, "git config injection via -c"},
		{[]string{"--config-env=core.pager=X", "log"}, "git config injection via --config-env"},
		{[]string{"--exec-path=/tmp", "status"}, "git config injection via --exec-path"},
	}
	for _, tt := range tests {
		reason, bad := gitPredicate(tt.args)
		if bad != (tt.reason != "") || reason != tt.reason {
			t.Errorf("gitPredicate(%q) = %q, %v, want %q", tt.args, reason, bad, tt.reason)
		}
	}
}

func TestIsLongFlag(t *testing.T) {
	tests := []struct {
		arg  string
		want bool
	}{
		{"--recursive", true},
		{"--recur", true},
		{"--r", true},
		{"--", false},
		{"-r", false},
		{"--recursively", false},
		{"--reference", false},
	}
	for _, tt := range tests {
		if got := isLongFlag(tt.arg, flagRecursive); got != tt.want {
			t.Errorf("isLongFlag(%q, %q) = %v, want %v", tt.arg, flagRecursive, got, tt.want)
		}
	}
}

func TestChownAbbreviatedRecursive(t *testing.T) {
	if !isRecursive([]string{"--recur", "me", "dir"}) {
		t.Error("isRecursive(--recur) = false, want true")
	}
	if isRecursive([]string{"--", "--recursive"}) {
		t.Error("isRecursive after -- = true, want false")
	}
}

func TestIsWorldWritableMode(t *testing.T) {
	tests := []struct {
		mode string
		want bool
	}{
		{"777", true},
		{"0777", true},
		{"666", true},
		{"1777", true},
		{"o+w", true},
		{"a+w", true},
		{"a+rwx", true},
		{"o+rwx", true},
		{"+w", true},
		{"u+x,o=rw", true},
		{"755", false},
		{"0644", false},
		{"u+w", false},
		{"g+w", false},
		{"o-w", false},
		{"o+r", false},
		{"dir", false},
		{"-R", false},
	}
	for _, tt := range tests {
		if got := isWorldWritableMode(tt.mode); got != tt.want {
			t.Errorf("isWorldWritableMode(%q) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestDatabasePredicate(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-c", "select * from t"}, ""},
		{[]string{"-c", "drop   table users"}, "destructive database statement DROP TABLE"},
		{[]string{"-e", "DROP DATABASE prod"}, "destructive database statement DROP DATABASE"},
		{[]string{"-e", "truncate table t"}, "destructive database statement TRUNCATE TABLE"},
		{[]string{"app.db", "DELETE FROM t"}, "destructive database statement DELETE FROM"},
		{[]string{"--eval", "db.dropDatabase()"}, "destructive database statement DROPDATABASE"},
		{[]string{"FLUSHDB"}, "destructive database statement FLUSHDB"},
		{[]string{"-c", "select 'backdrop table'"}, ""},
	}
	for _, tt := range tests {
		got, _ := databasePredicate(tt.args)
		if got != tt.want {
			t.Errorf("databasePredicate(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestContainerPredicate(t *testing.T) {
	p := containerPredicate("docker")
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"ps"}, ""},
		{[]string{"run", "alpine"}, ""},
		{[]string{"rm", "x"}, "destructive docker rm"},
		{[]string{"container", "prune"}, "destructive docker prune"},
		{[]string{"system", "df"}, "destructive docker system"},
		{[]string{"kill", "x"}, "destructive docker kill"},
	}
	for _, tt := range tests {
		got, _ := p(tt.args)
		if got != tt.want {
			t.Errorf("docker predicate(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestReverseShellPredicates(t *testing.T) {
	if _, bad := netcatPredicate("nc")([]string{"-l", "8080"}); bad {
		t.Error("nc -l 8080 flagged")
	}
	if reason, bad := netcatPredicate("ncat")([]string{"--sh-exec", "x", "h", "1"}); !bad || !strings.Contains(reason, "ncat") {
		t.Errorf("ncat --sh-exec = %q, %v", reason, bad)
	}
	if _, bad := socatPredicate([]string{"-", "tcp:host:80"}); bad {
		t.Error("plain socat flagged")
	}
	if _, bad := socatPredicate([]string{"SSL:host:443", "SYSTEM:sh"}); !bad {
		t.Error("socat ssl + system not flagged")
	}
}

func TestPartitionPredicate(t *testing.T) {
	if _, bad := partitionPredicate([]string{"-l"}); bad {
		t.Error("fdisk -l flagged")
	}
	if _, bad := partitionPredicate([]string{"/dev/sda"}); !bad {
		t.Error("fdisk /dev/sda not flagged")
	}
}

func TestBaseCommand(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"rm", "rm"},
		{"/bin/rm", "rm"},
		{"./script.sh", "script.sh"},
		{"/usr/local/bin/", "bin"},
		{"", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := baseCommand(tt.cmd); got != tt.want {
			t.Errorf("baseCommand(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestInterpreterFamily(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"python", "python"},
		{"python3", "python"},
		{"python3.11", "python"},
		{"pypy3", "pypy"},
		{"perl5.36", "perl"},
		{"node18", "node"},
		{"php8.2", "php"},
		{"ls", "ls"},
		{"go1.22", "go1.22"},
		{"mkfs.ext4", "mkfs.ext4"},
	}
	for _, tt := range tests {
		if got := interpreterFamily(tt.name); got != tt.want {
			t.Errorf("interpreterFamily(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRuleKey(t *testing.T) {
	if got := ruleKey("mkfs.ext4"); got != "mkfs" {
		t.Errorf("ruleKey(mkfs.ext4) = %q", got)
	}
	if got := ruleKey("rm"); got != "rm" {
		t.Errorf("ruleKey(rm) = %q", got)
	}
}
