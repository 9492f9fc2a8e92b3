package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/outreach/internal/broadcast"
	"github.com/soyeahso/outreach/internal/campaign"
	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/dialer"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/hooks"
	"github.com/soyeahso/outreach/internal/logging"
	"github.com/soyeahso/outreach/internal/store"
	"github.com/spf13/cobra"
)

// simulation describes one in-process campaign run.
type simulation struct {
	Leads     []string
	ScriptID  string
	Delay     int
	DelayUnit time.Duration
	Latency   time.Duration
	Seed      int64
	Weights   map[string]int
	JSON      bool

	// Store supplies leads and scripts and records attempts. When nil an
	// in-memory recorder is used and every lead is dialable.
	Store store.Store
}

func newSimulateCmd() *cobra.Command {
	var (
		sim      simulation
		leads    string
		delay    int
		fast     bool
		latency  int
		useStore bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a campaign in process against the simulated dialer",
		Long: "Runs one agent over the given leads with the simulated dialer and prints\n" +
			"every snapshot it publishes. No gateway is started.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			sim.Leads = strings.Split(leads, ",")
			sim.Delay = delay
			sim.DelayUnit = time.Second
			if fast {
				sim.DelayUnit = 0
			}
			sim.Latency = time.Duration(latency) * time.Millisecond
			if !cmd.Flags().Changed("latency-ms") {
				sim.Latency = time.Duration(cfg.Dialer.Mock.LatencyMs) * time.Millisecond
			}
			if sim.Seed == 0 {
				sim.Seed = cfg.Dialer.Mock.Seed
			}
			sim.Weights = cfg.Dialer.Mock.Outcomes

			if useStore {
				st, err := store.New(cfg.Store, paths.DB, log)
				if err != nil {
					return fmt.Errorf("opening store: %w", err)
				}
				defer st.Close()
				sim.Store = st
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			final, err := runSimulation(ctx, cmd.OutOrStdout(), sim, cfg.Campaign, log)
			if err != nil {
				return err
			}
			if final.Status == domain.StatusFailed {
				return fmt.Errorf("campaign failed: %s", final.LastError)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&leads, "leads", "", "comma-separated lead ids")
	cmd.Flags().StringVar(&sim.ScriptID, "script", "", "script id")
	cmd.Flags().IntVar(&delay, "delay", domain.MinDelaySeconds, "seconds between calls (1-60)")
	cmd.Flags().BoolVar(&fast, "fast", false, "skip the delay between calls")
	cmd.Flags().IntVar(&latency, "latency-ms", 0, "simulated call latency")
	cmd.Flags().Int64Var(&sim.Seed, "seed", 0, "random seed for outcomes")
	cmd.Flags().BoolVar(&sim.JSON, "json", false, "print snapshots as JSON lines")
	cmd.Flags().BoolVar(&useStore, "store", false, "resolve leads and record attempts in the configured store")
	cmd.MarkFlagRequired("leads")

	return cmd
}

// runSimulation spawns and starts one agent, streams its snapshots to out
// and returns its final state.
func runSimulation(ctx context.Context, out io.Writer, sim simulation, cc config.CampaignConfig, log *logging.Logger) (domain.Agent, error) {
	weights := make(map[domain.Outcome]int, len(sim.Weights))
	for name, w := range sim.Weights {
		o, err := domain.ParseOutcome(name)
		if err != nil {
			return domain.Agent{}, err
		}
		weights[o] = w
	}

	st := sim.Store
	opts := dialer.SimulatorOptions{Latency: sim.Latency, Seed: sim.Seed, Weights: weights}
	if st != nil {
		opts.Leads = st
		opts.Scripts = st
	} else {
		st = store.NewMemory()
	}

	hub := broadcast.NewHub(256, log)
	hookMgr := hooks.NewManager(log)
	regOpts := registryOptions(cc, st, hub, hookMgr)
	regOpts = append(regOpts, campaign.WithDelayUnit(sim.DelayUnit))
	agents := campaign.NewRegistry(dialer.NewSimulator(opts), log, regOpts...)
	defer agents.Close()

	delay := sim.Delay
	view, err := agents.Spawn(campaign.SpawnRequest{
		ScriptID: sim.ScriptID,
		LeadIDs:  sim.Leads,
		Config:   campaign.SpawnConfig{DelayBetweenCalls: &delay},
	})
	if err != nil {
		return domain.Agent{}, err
	}

	sub := hub.Subscribe(view.ID)
	defer sub.Close()

	if _, err := agents.Start(view.ID); err != nil {
		return domain.Agent{}, err
	}
	fmt.Fprintf(out, "agent %s (%s): %d leads\n", view.Name, view.ID, len(view.LeadQueue))

	for {
		select {
		case snap, ok := <-sub.C:
			if !ok {
				return agents.Get(view.ID)
			}
			if err := printSnapshot(out, snap, sim.JSON); err != nil {
				return domain.Agent{}, err
			}
			if snap.Status.Terminal() {
				final, err := agents.Get(view.ID)
				if err != nil {
					return domain.Agent{}, err
				}
				printSummary(out, final)
				return final, nil
			}
		case <-ctx.Done():
			if _, err := agents.Stop(view.ID); err != nil {
				log.Debug().Err(err).Msg("stop on interrupt")
			}
			return agents.Get(view.ID)
		}
	}
}

func printSnapshot(out io.Writer, snap domain.Snapshot, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(out).Encode(snap)
	}
	line := fmt.Sprintf("%-9s queue=%-3d calls=%-3d booked=%d",
		snap.Status, snap.LeadQueueLength, snap.Stats.TotalCalls, snap.Stats.Booked)
	if snap.CurrentLeadID != "" {
		line += " calling=" + snap.CurrentLeadID
	}
	if snap.Error != "" {
		line += " error=" + snap.Error
	}
	_, err := fmt.Fprintln(out, line)
	return err
}

func printSummary(out io.Writer, a domain.Agent) {
	s := a.Stats
	fmt.Fprintf(out, "\n%s %s after %d calls\n", a.Name, a.Status, s.TotalCalls)
	for _, o := range domain.Outcomes {
		if n := s.Count(o); n > 0 {
			fmt.Fprintf(out, "  %-15s %d\n", o, n)
		}
	}
	if len(a.LeadQueue) > 0 {
		fmt.Fprintf(out, "  not called      %s\n", strings.Join(a.LeadQueue, ", "))
	}
}
