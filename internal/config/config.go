// Package config loads a cmdpolicy.Policy from layered sources and keeps an
// engine in sync with the policy files on disk.
//
// Precedence, lowest first: built-in defaults, the user policy
// ($XDG_CONFIG_HOME/cmdpolicy/policy.toml), the project policy
// (.cmdpolicy.toml, .cmdpolicy.yaml or .cmdpolicy.yml in the project
// directory), CMDPOLICY_* environment variables, then flag overrides.
//
// The project layer lives in the tree an agent edits, so it may only
// tighten the policy: it can set max_depth and max_length, add deny_args and
// append to guard sets under [extend], but never replace a guard set or add
// safe targets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/zhangyunhao116/cmdpolicy"
	"github.com/zhangyunhao116/cmdpolicy/internal/envutil"
)

// keyDelimiter replaces viper's default "." so that deny_args keys such as
// "mkfs.ext4" are not split into nested tables.
const keyDelimiter = "::"

// ProjectFileNames are the project policy file names, in lookup order.
var ProjectFileNames = []string{".cmdpolicy.toml", ".cmdpolicy.yaml", ".cmdpolicy.yml"}

// LoadOptions controls policy loading.
type LoadOptions struct {
	// ProjectDir is searched for a project policy file. Defaults to the
	// working directory when empty.
	ProjectDir string

	// ConfigPath overrides the project policy path if provided.
	ConfigPath string

	// UserConfigPath overrides the user policy path. Empty selects the
	// default location; "-" disables the user layer.
	UserConfigPath string

	// FlagOverrides are highest-priority overrides keyed by policy key,
	// e.g. "max_depth".
	FlagOverrides map[string]any

	// Environ is consulted for CMDPOLICY_* variables. Nil means os.Environ().
	Environ []string
}

// Load returns the effective policy after applying every layer.
func Load(opts LoadOptions) (*cmdpolicy.Policy, error) {
	user, project := layerPaths(opts)
	return load(opts, user, project)
}

// LoadFile returns the built-in defaults overlaid with the single policy file
// at path. The file must exist.
func LoadFile(path string) (*cmdpolicy.Policy, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat policy %s: %w", path, err)
	}
	return load(LoadOptions{}, []string{path}, "")
}

// load merges the trusted files in order, then the restricted project file.
func load(opts LoadOptions, files []string, project string) (*cmdpolicy.Policy, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	setDefaults(v)

	var ext Extension
	for _, path := range files {
		f, ok, err := mergeConfigFile(v, path)
		if err != nil {
			return nil, err
		}
		if ok {
			ext.add(f.Extend)
		}
	}
	var projectDeny map[string][]string
	if project != "" {
		f, ok, err := mergeProjectFile(v, project)
		if err != nil {
			return nil, err
		}
		if ok {
			ext.add(f.Extend)
			projectDeny = f.DenyArgs
		}
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	if err := applyEnvOverrides(v, environ); err != nil {
		return nil, err
	}
	applyFlagOverrides(v, opts.FlagOverrides)

	p := &cmdpolicy.Policy{}
	if err := v.Unmarshal(p); err != nil {
		return nil, fmt.Errorf("unmarshal policy: %w", err)
	}
	ext.applyTo(p)
	appendDenyArgs(p, projectDeny)
	p.Rules = cmdpolicy.DefaultRules()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// setDefaults seeds viper with the built-in policy.
func setDefaults(v *viper.Viper) {
	def := cmdpolicy.DefaultPolicy()

	v.SetDefault("max_depth", def.MaxDepth)
	v.SetDefault("max_length", def.MaxLength)
	v.SetDefault("indirect_executors", def.IndirectExecutors)
	v.SetDefault("env_hijack", def.EnvHijack)
	v.SetDefault("sensitive_paths", def.SensitivePaths)
	v.SetDefault("safe_targets", def.SafeTargets)
	v.SetDefault("allowlist", def.Allowlist)
	v.SetDefault("always_deny", def.AlwaysDeny)
	v.SetDefault("deny_args", map[string][]string{})
}

// readPolicyFile strictly decodes the file at path. A missing file is
// reported as not found rather than as an error.
func readPolicyFile(path string) (File, bool, error) {
	if path == "" {
		return File{}, false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return File{}, false, nil
		}
		return File{}, false, fmt.Errorf("stat policy %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, false, fmt.Errorf("policy path %s is a directory", path)
	}

	f, err := DecodeFile(path)
	if err != nil {
		return File{}, false, err
	}
	return f, true, nil
}

// mergeConfigFile strictly validates the file, then merges it into v. A
// missing file is skipped.
func mergeConfigFile(v *viper.Viper, path string) (File, bool, error) {
	f, ok, err := readPolicyFile(path)
	if err != nil || !ok {
		return File{}, false, err
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return File{}, false, fmt.Errorf("merge policy %s: %w", path, err)
	}
	return f, true, nil
}

// projectGuardKeys are the keys a project policy may not set.
var projectGuardKeys = []string{
	"indirect_executors",
	"env_hijack",
	"sensitive_paths",
	"safe_targets",
	"allowlist",
	"always_deny",
	"extend" + keyDelimiter + "safe_targets",
}

// projectScalarKeys are copied from a project policy into v.
var projectScalarKeys = []string{"max_depth", "max_length"}

// mergeProjectFile validates a project policy and applies its scalar keys to
// v. Its [extend] section and deny_args are returned for the caller to
// append.
func mergeProjectFile(v *viper.Viper, path string) (File, bool, error) {
	f, ok, err := readPolicyFile(path)
	if err != nil || !ok {
		return File{}, false, err
	}
	pv := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	pv.SetConfigFile(path)
	if err := pv.ReadInConfig(); err != nil {
		return File{}, false, fmt.Errorf("read policy %s: %w", path, err)
	}

	var denied []string
	for _, k := range projectGuardKeys {
		if pv.IsSet(k) {
			denied = append(denied, strings.ReplaceAll(k, keyDelimiter, "."))
		}
	}
	if len(denied) > 0 {
		return File{}, false, fmt.Errorf("%w: %s sets %s", ErrProjectOverride, path, strings.Join(denied, ", "))
	}
	for _, k := range projectScalarKeys {
		if pv.IsSet(k) {
			v.Set(k, pv.Get(k))
		}
	}
	return f, true, nil
}

// appendDenyArgs adds project deny_args to the inherited ones. Keys are
// lower-cased to match the keys viper produces for the other layers.
func appendDenyArgs(p *cmdpolicy.Policy, extra map[string][]string) {
	if len(extra) == 0 {
		return
	}
	if p.DenyArgs == nil {
		p.DenyArgs = make(map[string][]string, len(extra))
	}
	for name, args := range extra {
		name = strings.ToLower(name)
		p.DenyArgs[name] = append(p.DenyArgs[name], args...)
	}
}

type valueKind int

const (
	kindInt valueKind = iota
	kindStringSlice
)

// envBindings maps CMDPOLICY_* variables to policy keys. Allowlist patterns
// may contain commas and are file-only.
var envBindings = []struct {
	Env  string
	Key  string
	Kind valueKind
}{
	{"CMDPOLICY_MAX_DEPTH", "max_depth", kindInt},
	{"CMDPOLICY_MAX_LENGTH", "max_length", kindInt},
	{"CMDPOLICY_INDIRECT_EXECUTORS", "indirect_executors", kindStringSlice},
	{"CMDPOLICY_ENV_HIJACK", "env_hijack", kindStringSlice},
	{"CMDPOLICY_ALWAYS_DENY", "always_deny", kindStringSlice},
}

// applyEnvOverrides reads CMDPOLICY_* env vars and applies them.
func applyEnvOverrides(v *viper.Viper, environ []string) error {
	for _, binding := range envBindings {
		val, _ := envutil.Lookup(environ, binding.Env)
		if val == "" {
			continue
		}
		parsed, err := parseValueByKind(val, binding.Kind)
		if err != nil {
			return fmt.Errorf("env %s: %w", binding.Env, err)
		}
		v.Set(binding.Key, parsed)
	}
	return nil
}

func parseValueByKind(raw string, kind valueKind) (any, error) {
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("expected integer: %w", err)
		}
		return n, nil
	case kindStringSlice:
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		return result, nil
	default:
		return nil, errors.New("unsupported value kind")
	}
}

// applyFlagOverrides applies CLI overrides as highest-precedence values.
func applyFlagOverrides(v *viper.Viper, overrides map[string]any) {
	for k, val := range overrides {
		v.Set(k, val)
	}
}

// Sources returns the user and project policy paths Load consults, lowest
// precedence first. The files need not exist.
func Sources(opts LoadOptions) []string {
	user, project := layerPaths(opts)
	return append(user, project)
}

// layerPaths returns the trusted user policy paths and the project policy
// path.
func layerPaths(opts LoadOptions) ([]string, string) {
	var user []string
	if p := userConfigPath(opts.UserConfigPath); p != "" {
		user = append(user, p)
	}
	return user, projectConfigPath(opts.ProjectDir, opts.ConfigPath)
}

func userConfigPath(override string) string {
	switch override {
	case "-":
		return ""
	case "":
	default:
		return override
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cmdpolicy", "policy.toml")
}

func projectConfigPath(projectDir, override string) string {
	if override != "" {
		return override
	}
	if projectDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			projectDir = cwd
		}
	}
	for _, name := range ProjectFileNames {
		p := filepath.Join(projectDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(projectDir, ProjectFileNames[0])
}
