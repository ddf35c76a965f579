package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/zhangyunhao116/cmdpolicy"
)

// File is the on-disk shape of a policy file. Top-level keys replace the
// value from lower-precedence layers; keys under [extend] are appended to it.
// A project policy accepts only the subset described in the package
// documentation.
type File struct {
	cmdpolicy.Policy `yaml:",inline" mapstructure:",squash"`

	Extend Extension `toml:"extend" yaml:"extend" json:"extend" mapstructure:"extend"`
}

// Extension lists entries appended to the inherited policy instead of
// replacing it.
type Extension struct {
	IndirectExecutors []string `toml:"indirect_executors" yaml:"indirect_executors" json:"indirect_executors" mapstructure:"indirect_executors"`
	EnvHijack         []string `toml:"env_hijack" yaml:"env_hijack" json:"env_hijack" mapstructure:"env_hijack"`
	SensitivePaths    []string `toml:"sensitive_paths" yaml:"sensitive_paths" json:"sensitive_paths" mapstructure:"sensitive_paths"`
	SafeTargets       []string `toml:"safe_targets" yaml:"safe_targets" json:"safe_targets" mapstructure:"safe_targets"`
	Allowlist         []string `toml:"allowlist" yaml:"allowlist" json:"allowlist" mapstructure:"allowlist"`
	AlwaysDeny        []string `toml:"always_deny" yaml:"always_deny" json:"always_deny" mapstructure:"always_deny"`
}

func (e *Extension) add(o Extension) {
	e.IndirectExecutors = append(e.IndirectExecutors, o.IndirectExecutors...)
	e.EnvHijack = append(e.EnvHijack, o.EnvHijack...)
	e.SensitivePaths = append(e.SensitivePaths, o.SensitivePaths...)
	e.SafeTargets = append(e.SafeTargets, o.SafeTargets...)
	e.Allowlist = append(e.Allowlist, o.Allowlist...)
	e.AlwaysDeny = append(e.AlwaysDeny, o.AlwaysDeny...)
}

func (e Extension) applyTo(p *cmdpolicy.Policy) {
	p.IndirectExecutors = append(p.IndirectExecutors, e.IndirectExecutors...)
	p.EnvHijack = append(p.EnvHijack, e.EnvHijack...)
	p.SensitivePaths = append(p.SensitivePaths, e.SensitivePaths...)
	p.SafeTargets = append(p.SafeTargets, e.SafeTargets...)
	p.Allowlist = append(p.Allowlist, e.Allowlist...)
	p.AlwaysDeny = append(p.AlwaysDeny, e.AlwaysDeny...)
}

// Format is a policy file encoding.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported policy file extension %q", filepath.Ext(path))
	}
}

// ErrUnknownKeys is returned when a policy file contains keys that do not
// map to any policy field.
var ErrUnknownKeys = errors.New("config: unknown keys")

// ErrProjectOverride is returned when a project policy tries to replace a
// guard set or add safe targets.
var ErrProjectOverride = errors.New("config: project policy may only tighten guard sets")

// DecodeFile strictly decodes the policy file at path. Unknown keys are an
// error so that typos do not silently weaken a policy.
func DecodeFile(path string) (File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return File{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	f, err := Decode(data, format)
	if err != nil {
		return File{}, fmt.Errorf("decode policy %s: %w", path, err)
	}
	return f, nil
}

// Decode strictly decodes a policy document.
func Decode(data []byte, format Format) (File, error) {
	var f File
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return File{}, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			slices.Sort(keys)
			return File{}, fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			if strings.Contains(err.Error(), "not found in type") {
				return File{}, fmt.Errorf("%w: %w", ErrUnknownKeys, err)
			}
			return File{}, err
		}
	default:
		return File{}, fmt.Errorf("unsupported format %q", format)
	}
	return f, nil
}
