package config

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/zhangyunhao116/cmdpolicy"
)

// ParseFormat parses a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTOML, FormatYAML, FormatJSON:
		return Format(s), nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want toml, yaml or json)", s)
	}
}

// Encode writes p in the given format. The output of the toml and yaml
// encodings is accepted by Decode.
func Encode(w io.Writer, p *cmdpolicy.Policy, format Format) error {
	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(p)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
