package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/outreach/internal/campaign"
	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/gateway"
	"github.com/soyeahso/outreach/internal/version"
	"github.com/spf13/cobra"
)

var gatewayURL string

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Control agents on a running gateway",
	}

	cmd.PersistentFlags().StringVar(&gatewayURL, "url", "", "gateway WebSocket URL (default from config)")

	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentGetCmd())
	cmd.AddCommand(newAgentSpawnCmd())
	for _, op := range []string{"start", "pause", "resume", "stop"} {
		cmd.AddCommand(newAgentControlCmd(op))
	}
	cmd.AddCommand(newAgentDeleteCmd())
	cmd.AddCommand(newAgentWatchCmd())
	cmd.AddCommand(newAgentWaitCmd())
	return cmd
}

// defaultGatewayURL points at the local gateway described by cfg.
func defaultGatewayURL(cfg config.GatewayConfig) string {
	port := cfg.Port
	if port == 0 {
		port = config.DefaultGatewayPort
	}
	scheme := "ws"
	if cfg.TLS.Enabled {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://127.0.0.1:%d/ws", scheme, port)
}

// dialGateway connects to the gateway using the configured credentials.
func dialGateway(ctx context.Context) (*gateway.Remote, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	url := gatewayURL
	if url == "" {
		url = defaultGatewayURL(cfg.Gateway)
	}
	return gateway.Dial(ctx, url,
		gateway.ResolveAuth(cfg.Gateway.Auth).Credentials(),
		gateway.ClientInfo{
			ID:       "outreach-cli",
			Version:  version.Version,
			Platform: runtime.GOOS,
			Mode:     "app",
		})
}

// withGateway dials, runs fn and closes the connection.
func withGateway(cmd *cobra.Command, fn func(ctx context.Context, r *gateway.Remote) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := dialGateway(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	return fn(ctx, r)
}

type agentIDParams struct {
	AgentID string `json:"agentId"`
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(ctx context.Context, r *gateway.Remote) error {
				var res struct {
					Agents []domain.Agent `json:"agents"`
				}
				if err := r.Call(ctx, "agent.list", nil, &res); err != nil {
					return err
				}
				return printAgents(cmd.OutOrStdout(), res.Agents)
			})
		},
	}
}

func printAgents(out io.Writer, agents []domain.Agent) error {
	if len(agents) == 0 {
		_, err := fmt.Fprintln(out, "No agents.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tQUEUE\tCALLS\tBOOKED")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			a.ID, a.Name, a.Status, len(a.LeadQueue), a.Stats.TotalCalls, a.Stats.Booked)
	}
	return tw.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAgentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(ctx context.Context, r *gateway.Remote) error {
				var a domain.Agent
				if err := r.Call(ctx, "agent.get", agentIDParams{AgentID: args[0]}, &a); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a)
			})
		},
	}
}

func newAgentSpawnCmd() *cobra.Command {
	var (
		name     string
		leads    string
		scriptID string
		delay    int
		start    bool
	)

	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Create an agent over a list of leads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := campaign.SpawnRequest{
				Name:     name,
				ScriptID: scriptID,
				LeadIDs:  strings.Split(leads, ","),
			}
			if cmd.Flags().Changed("delay") {
				req.Config.DelayBetweenCalls = &delay
			}

			return withGateway(cmd, func(ctx context.Context, r *gateway.Remote) error {
				var a domain.Agent
				if err := r.Call(ctx, "agent.spawn", req, &a); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Spawned %s (%s) with %d lead(s)\n", a.Name, a.ID, len(a.LeadQueue))
				if !start {
					return nil
				}
				var snap domain.Snapshot
				if err := r.Call(ctx, "agent.start", agentIDParams{AgentID: a.ID}, &snap); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", a.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "agent name (generated when empty)")
	cmd.Flags().StringVar(&leads, "leads", "", "comma-separated lead ids")
	cmd.Flags().StringVar(&scriptID, "script", "", "script id")
	cmd.Flags().IntVar(&delay, "delay", domain.DefaultDelaySeconds, "seconds between calls (1-60)")
	cmd.Flags().BoolVar(&start, "start", false, "start the agent after spawning")
	cmd.MarkFlagRequired("leads")
	return cmd
}

func newAgentControlCmd(op string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <id>",
		Short: strings.ToUpper(op[:1]) + op[1:] + " an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(ctx context.Context, r *gateway.Remote) error {
				var snap domain.Snapshot
				if err := r.Call(ctx, "agent."+op, agentIDParams{AgentID: args[0]}, &snap); err != nil {
					return err
				}
				return printSnapshot(cmd.OutOrStdout(), snap, false)
			})
		},
	}
}

func newAgentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an agent that is not running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(ctx context.Context, r *gateway.Remote) error {
				var res struct {
					Deleted bool `json:"deleted"`
				}
				if err := r.Call(ctx, "agent.delete", agentIDParams{AgentID: args[0]}, &res); err != nil {
					return err
				}
				if !res.Deleted {
					return fmt.Errorf("agent %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newAgentWatchCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream an agent's snapshots until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(ctx context.Context, r *gateway.Remote) error {
				return watchAgent(ctx, r, args[0], cmd.OutOrStdout(), asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print snapshots as JSON lines")
	return cmd
}

// watchAgent subscribes to id and prints snapshots until a terminal status,
// the end of the connection or ctx.
func watchAgent(ctx context.Context, r *gateway.Remote, id string, out io.Writer, asJSON bool) error {
	if err := r.Call(ctx, "agent.subscribe", agentIDParams{AgentID: id}, nil); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				return fmt.Errorf("gateway closed the connection")
			}
			if ev.Event != gateway.EventAgentSnapshot {
				continue
			}
			var snap domain.Snapshot
			if err := json.Unmarshal(ev.Payload, &snap); err != nil {
				return fmt.Errorf("decoding snapshot: %w", err)
			}
			if snap.AgentID != id {
				continue
			}
			if err := printSnapshot(out, snap, asJSON); err != nil {
				return err
			}
			if snap.Status.Terminal() {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func newAgentWaitCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Block until an agent completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, func(ctx context.Context, r *gateway.Remote) error {
				params := map[string]any{"agentId": args[0], "timeoutMs": timeout.Milliseconds()}
				var a domain.Agent
				if err := r.Call(ctx, "agent.wait", params, &a); err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), a)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long the gateway waits")
	return cmd
}
