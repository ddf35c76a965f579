package cmdpolicy

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zhangyunhao116/cmdpolicy/internal/pathutil"
)

const (
	// flagRecursive is the long-form --recursive flag used in rule matching.
	flagRecursive = "--recursive"
	// flagForce is the long-form --force flag used in rule matching.
	flagForce = "--force"
)

// RuleEntry binds a program base name to a predicate over its literal
// arguments. Predicates only ever see arguments without expansion.
type RuleEntry struct {
	// Binary is the program base name, e.g. "rm".
	Binary string

	// Rule is a short, unique identifier, e.g. "destructive-rm".
	Rule string

	// Predicate inspects the literal arguments and reports whether the
	// invocation is dangerous, with a short reason.
	Predicate func(args []string) (reason string, dangerous bool)
}

// DefaultRules returns the built-in destructive-binary table.
func DefaultRules() []RuleEntry {
	rules := []RuleEntry{
		{Binary: "rm", Rule: "destructive-rm", Predicate: rmPredicate},
		{Binary: "kubectl", Rule: "destructive-kubectl", Predicate: kubectlPredicate},
		{Binary: "docker", Rule: "destructive-docker", Predicate: containerPredicate("docker")},
		{Binary: "podman", Rule: "destructive-podman", Predicate: containerPredicate("podman")},
		{Binary: "helm", Rule: "destructive-helm", Predicate: helmPredicate},
		{Binary: "chmod", Rule: "destructive-chmod", Predicate: chmodPredicate},
		{Binary: "chown", Rule: "destructive-chown", Predicate: ownershipPredicate},
		{Binary: "chgrp", Rule: "destructive-chgrp", Predicate: ownershipPredicate},
		{Binary: "dd", Rule: "block-device", Predicate: always("direct block device access")},
		{Binary: "mkfs", Rule: "block-device", Predicate: always("direct block device access")},
		{Binary: "shred", Rule: "data-destruction", Predicate: always("irreversible data destruction")},
		{Binary: "wipefs", Rule: "data-destruction", Predicate: always("irreversible data destruction")},
		{Binary: "fdisk", Rule: "partition-table", Predicate: partitionPredicate},
		{Binary: "parted", Rule: "partition-table", Predicate: partitionPredicate},
		{Binary: "git", Rule: "destructive-git", Predicate: gitPredicate},
		{Binary: "find", Rule: "destructive-find", Predicate: findPredicate},
		{Binary: "nc", Rule: "reverse-shell", Predicate: netcatPredicate("nc")},
		{Binary: "ncat", Rule: "reverse-shell", Predicate: netcatPredicate("ncat")},
		{Binary: "netcat", Rule: "reverse-shell", Predicate: netcatPredicate("netcat")},
		{Binary: "socat", Rule: "reverse-shell", Predicate: socatPredicate},
	}
	for _, client := range []string{
		"psql", "mysql", "mariadb", "sqlite3", "sqlcmd", "mongo", "mongosh",
		"redis-cli", "cqlsh", "clickhouse-client",
	} {
		rules = append(rules, RuleEntry{Binary: client, Rule: "destructive-database", Predicate: databasePredicate})
	}
	return rules
}

// ruleKey maps a program base name to its rule table key. Variants such as
// mkfs.ext4 share the mkfs entry.
func ruleKey(base string) string {
	if strings.HasPrefix(base, "mkfs.") {
		return "mkfs"
	}
	return base
}

func always(reason string) func([]string) (string, bool) {
	return func([]string) (string, bool) { return reason, true }
}

// shortFlags returns the letters of a short-flag cluster such as "-rf", or ""
// if arg is not one.
func shortFlags(arg string) string {
	if len(arg) < 2 || arg[0] != '-' || arg[1] == '-' {
		return ""
	}
	return arg[1:]
}

// subcommand returns the first argument that is not a flag, and its index.
func subcommand(args []string) (string, int) {
	for i, a := range args {
		if a == "--" {
			if i+1 < len(args) {
				return args[i+1], i + 1
			}
			return "", -1
		}
		if !strings.HasPrefix(a, "-") {
			return a, i
		}
	}
	return "", -1
}

func rmPredicate(args []string) (string, bool) {
	for _, a := range args {
		if a == "--" {
			break
		}
		if isLongFlag(a, flagRecursive) || isLongFlag(a, flagForce) {
			return "destructive rm flags", true
		}
		if strings.ContainsAny(shortFlags(a), "rRf") {
			return "destructive rm flags", true
		}
	}
	return "", false
}

// isLongFlag reports whether a spells the long option full or an
// abbreviation of it, as getopt_long and git accept.
func isLongFlag(a, full string) bool {
	return len(a) >= 3 && strings.HasPrefix(full, a)
}

func kubectlPredicate(args []string) (string, bool) {
	for i, a := range args {
		switch a {
		case "delete":
			return "destructive kubectl delete", true
		case "drain":
			return "destructive kubectl drain", true
		case "scale":
			for j := i + 1; j < len(args); j++ {
				if args[j] == "--replicas=0" || (args[j] == "--replicas" && j+1 < len(args) && args[j+1] == "0") {
					return "destructive kubectl scale to zero", true
				}
			}
		}
	}
	return "", false
}

func containerPredicate(name string) func([]string) (string, bool) {
	destructive := map[string]bool{"rm": true, "rmi": true, "kill": true, "prune": true}
	return func(args []string) (string, bool) {
		if sub, _ := subcommand(args); sub == "system" {
			return "destructive " + name + " system", true
		}
		for _, a := range args {
			if destructive[a] {
				return "destructive " + name + " " + a, true
			}
		}
		return "", false
	}
}

func helmPredicate(args []string) (string, bool) {
	for _, a := range args {
		switch a {
		case "uninstall", "delete", "rollback":
			return "destructive helm " + a, true
		}
	}
	return "", false
}

func isRecursive(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if isLongFlag(a, flagRecursive) || strings.ContainsRune(shortFlags(a), 'R') {
			return true
		}
	}
	return false
}

func chmodPredicate(args []string) (string, bool) {
	if !isRecursive(args) {
		return "", false
	}
	for _, a := range args {
		if isWorldWritableMode(a) {
			return "recursive world-writable chmod", true
		}
	}
	for _, a := range args {
		if pathutil.IsRootOrHome(a) {
			return "recursive chmod on root or home directory", true
		}
	}
	return "", false
}

// isWorldWritableMode reports whether a chmod mode grants write to others,
// in octal (777, 0666, 1777) or symbolic (o+w, a+rwx, +w, o=rw) form.
func isWorldWritableMode(mode string) bool {
	if len(mode) >= 3 && len(mode) <= 4 {
		if v, err := strconv.ParseUint(mode, 8, 16); err == nil {
			return v&0o002 != 0
		}
	}
	for _, clause := range strings.Split(mode, ",") {
		i := strings.IndexAny(clause, "+=")
		if i < 0 {
			continue
		}
		who, perms := clause[:i], clause[i+1:]
		if strings.Trim(who, "ugoa") != "" {
			continue
		}
		if (who == "" || strings.ContainsAny(who, "oa")) && strings.ContainsRune(perms, 'w') {
			return true
		}
	}
	return false
}

func ownershipPredicate(args []string) (string, bool) {
	if isRecursive(args) {
		return "recursive ownership change", true
	}
	return "", false
}

func partitionPredicate(args []string) (string, bool) {
	for _, a := range args {
		if a == "-l" || a == "--list" {
			return "", false
		}
	}
	return "partition table modification", true
}

// gitGlobalWithValue lists git global options that consume the next argument.
var gitGlobalWithValue = map[string]bool{
	"-C": true, "--git-dir": true, "--work-tree": true, "--namespace": true,
	"--super-prefix": true, "--list-cmds": true,
}

func gitPredicate(args []string) (string, bool) {
	i := 0
globals:
	for i < len(args) {
		a := args[i]
		switch {
		case a == "-c" || strings.HasPrefix(a, "--config-env") || strings.HasPrefix(a, "--exec-path="):
			return "git config injection via " + strings.SplitN(a, "=", 2)[0], true
		case gitGlobalWithValue[a]:
			i += 2
		case strings.HasPrefix(a, "-"):
			i++
		default:
			break globals
		}
	}
	if i >= len(args) {
		return "", false
	}
	sub, rest := args[i], args[i+1:]
	switch sub {
	case "reset":
		for _, a := range rest {
			if isLongFlag(a, "--hard") {
				return "destructive git reset --hard", true
			}
		}
	case "clean":
		for _, a := range rest {
			if isLongFlag(a, flagForce) || strings.ContainsRune(shortFlags(a), 'f') {
				return "destructive git clean -f", true
			}
		}
	case "push":
		for _, a := range rest {
			if strings.HasPrefix(a, flagForce) || isLongFlag(a, flagForce) || isLongFlag(a, "--mirror") ||
				strings.ContainsRune(shortFlags(a), 'f') ||
				(len(a) > 1 && a[0] == '+') {
				return "destructive git push --force", true
			}
		}
	}
	return "", false
}

func findPredicate(args []string) (string, bool) {
	for _, a := range args {
		switch a {
		case "-delete":
			return "destructive find -delete", true
		case "-exec", "-execdir", "-ok", "-okdir":
			return "find " + a + " runs arbitrary commands", true
		}
	}
	return "", false
}

var destructiveStatement = regexp.MustCompile(
	`(?i)\b(drop\s+(table|database|schema|keyspace)|truncate\s+table|delete\s+from|flushall|flushdb|dropdatabase)\b`)

func databasePredicate(args []string) (string, bool) {
	for _, a := range args {
		if m := destructiveStatement.FindString(a); m != "" {
			return "destructive database statement " + strings.ToUpper(strings.Join(strings.Fields(m), " ")), true
		}
	}
	// redis-cli takes the command as separate words.
	for _, a := range args {
		switch strings.ToLower(a) {
		case "flushall", "flushdb":
			return "destructive database statement " + strings.ToUpper(a), true
		}
	}
	return "", false
}

func netcatPredicate(name string) func([]string) (string, bool) {
	return func(args []string) (string, bool) {
		for _, a := range args {
			if a == "-e" || a == "-c" || a == "--exec" || a == "--sh-exec" || a == "--lua-exec" {
				return "reverse shell via " + name, true
			}
		}
		return "", false
	}
}

func socatPredicate(args []string) (string, bool) {
	hasExec := false
	hasNet := false
	for _, a := range args {
		la := strings.ToLower(a)
		if strings.Contains(la, "exec") || strings.Contains(la, "system") {
			hasExec = true
		}
		if strings.Contains(la, "tcp") || strings.Contains(la, "ssl") || strings.Contains(la, "udp") {
			hasNet = true
		}
	}
	if hasExec && hasNet {
		return "reverse shell via socat", true
	}
	return "", false
}

// baseCommand extracts the base name from a possibly path-qualified command.
// Trailing slashes are stripped before extracting the base name.
func baseCommand(cmd string) string {
	cmd = strings.TrimRight(cmd, "/")
	if cmd == "" {
		return ""
	}
	if idx := strings.LastIndex(cmd, "/"); idx >= 0 {
		return cmd[idx+1:]
	}
	return cmd
}

// interpreterFamily maps versioned interpreter names to their family:
// python3.11 becomes python, node18 becomes node. Other names are returned
// unchanged.
func interpreterFamily(name string) string {
	trimmed := strings.TrimRight(name, "0123456789.")
	switch trimmed {
	case "python", "pypy", "perl", "ruby", "php", "lua", "luajit", "node", "nodejs":
		return trimmed
	}
	return name
}
