package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zhangyunhao116/cmdpolicy"
	"github.com/zhangyunhao116/cmdpolicy/internal/config"
)

func (a *app) newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate policy files",
	}
	cmd.AddCommand(a.newPolicyShowCommand(), a.newPolicyValidateCommand(), a.newPolicySourcesCommand())
	return cmd
}

func (a *app) newPolicyShowCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective policy after all layers are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.flags.json && !cmd.Flags().Changed("format") {
				format = string(config.FormatJSON)
			}
			f, err := config.ParseFormat(format)
			if err != nil {
				return err
			}
			p, err := config.Load(a.loadOptions(cmd))
			if err != nil {
				return err
			}
			return config.Encode(cmd.OutOrStdout(), p, f)
		},
	}
	cmd.Flags().StringVar(&format, "format", string(config.FormatTOML), "output format (toml, yaml, json)")
	return cmd
}

type validation struct {
	File  string `json:"file"`
	Valid bool   `json:"valid"`
}

func (a *app) newPolicyValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a policy file for syntax errors, unknown keys and invalid values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.LoadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := cmdpolicy.NewEngine(p); err != nil {
				return err
			}
			out := a.printer(cmd)
			if out.JSON() {
				return out.NDJSON(validation{File: args[0], Valid: true})
			}
			return out.Message("%s: ok", args[0])
		},
	}
}

type source struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

func (a *app) newPolicySourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the policy files consulted, lowest precedence first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := a.printer(cmd)
			for _, path := range config.Sources(a.loadOptions(cmd)) {
				s := source{Path: path, Exists: fileExists(path)}
				var err error
				if out.JSON() {
					err = out.NDJSON(s)
				} else if s.Exists {
					err = out.Message("%s", s.Path)
				} else {
					err = out.Message("%s (missing)", s.Path)
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
