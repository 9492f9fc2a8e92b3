package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Outreach status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.Get())

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:   not found (using defaults)")
			}

			printStatus(out, cfg, paths.DB)
			return nil
		},
	}

	return cmd
}

// printStatus writes a one-line summary per config section.
func printStatus(out io.Writer, cfg config.Config, defaultDB string) {
	fmt.Fprintf(out, "Gateway:  port=%d bind=%s auth=%s tls=%v\n",
		cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)

	switch cfg.Dialer.Mode {
	case "live":
		fmt.Fprintf(out, "Dialer:   live url=%s\n", cfg.Dialer.Live.BaseURL)
	default:
		fmt.Fprintf(out, "Dialer:   %s latency=%dms seed=%d\n",
			cfg.Dialer.Mode, cfg.Dialer.Mock.LatencyMs, cfg.Dialer.Mock.Seed)
	}
	if p := cfg.Dialer.Classifier.Provider; p != "" {
		fmt.Fprintf(out, "Classify: %s %s\n", p, cfg.Dialer.Classifier.Model)
	}

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = defaultDB
	}
	if cfg.Store.Driver == "memory" {
		storePath = "(in memory)"
	}
	fmt.Fprintf(out, "Store:    %s %s\n", cfg.Store.Driver, storePath)

	c := cfg.Campaign
	fmt.Fprintf(out, "Campaign: delay=%ds timeout=%ds retention=%dm buffer=%d\n",
		c.DefaultDelaySeconds, c.CallTimeoutSeconds, c.RetentionMinutes, c.SubscriberBuffer)

	hookCount := len(cfg.Hooks.AgentCompleted) + len(cfg.Hooks.AgentFailed) + len(cfg.Hooks.CallCompleted)
	if hookCount > 0 {
		fmt.Fprintf(out, "Hooks:    %d configured\n", hookCount)
	}

	if irc := cfg.Notify.IRC; irc != nil {
		fmt.Fprintf(out, "IRC:      server=%s nick=%s channels=%s tls=%v\n",
			irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
	} else {
		fmt.Fprintln(out, "IRC:      (not configured)")
	}

	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
		}
	}
}
