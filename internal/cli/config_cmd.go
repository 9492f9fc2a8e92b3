package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soyeahso/outreach/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file",
		Long:  "Keys are dotted paths into config.yaml, e.g. campaign.defaultDelaySeconds or dialer.live.baseUrl.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value at key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRawConfig(args[0], false, func(raw map[string]any, key config.KeyPath) error {
					val, ok := key.Get(raw)
					if !ok {
						return fmt.Errorf("key %q not set", key)
					}
					return printValue(cmd.OutOrStdout(), val)
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set key to value; true/false and numbers are typed",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRawConfig(args[0], true, func(raw map[string]any, key config.KeyPath) error {
					v := parseValue(args[1])
					key.Set(raw, v)
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, v)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRawConfig(args[0], true, func(raw map[string]any, key config.KeyPath) error {
					if !key.Unset(raw) {
						return fmt.Errorf("key %q not set", key)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Load the config and report problems",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(paths.Config)
				if err != nil {
					return err
				}
				return reportIssues(cmd.OutOrStdout(), paths.Config, config.Validate(&cfg))
			},
		},
	)
	return cmd
}

// withRawConfig loads config.yaml as a tree, hands fn the parsed key, and
// writes the tree back when save is set and fn succeeded.
func withRawConfig(rawKey string, save bool, fn func(map[string]any, config.KeyPath) error) error {
	key, err := config.ParseKeyPath(rawKey)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	if err := fn(raw, key); err != nil {
		return err
	}
	if !save {
		return nil
	}
	return config.SaveRaw(paths.Config, raw)
}

func reportIssues(out io.Writer, file string, issues []config.ValidationIssue) error {
	if len(issues) == 0 {
		fmt.Fprintf(out, "%s: ok\n", file)
		return nil
	}
	for _, issue := range issues {
		fmt.Fprintf(out, "%s: %s\n", issue.Path, issue.Message)
	}
	return fmt.Errorf("%s: %d problem(s)", file, len(issues))
}

// printValue prints scalars bare and maps or lists as YAML.
func printValue(out io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	_, err := fmt.Fprintln(out, v)
	return err
}

// parseValue types a command-line value: booleans, then integers, then
// floats, else the string itself.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
