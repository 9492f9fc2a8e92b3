package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/outreach/internal/broadcast"
	"github.com/soyeahso/outreach/internal/campaign"
	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/dialer"
	"github.com/soyeahso/outreach/internal/gateway"
	"github.com/soyeahso/outreach/internal/hooks"
	"github.com/soyeahso/outreach/internal/notify/irc"
	"github.com/soyeahso/outreach/internal/store"
	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		port  int
		bind  string
		mode  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Run the campaign gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				go autorestart.RestartOnChange()
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if mode != "" {
				cfg.Dialer.Mode = mode
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			st, err := store.New(cfg.Store, paths.DB, log)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			runner, err := dialer.New(cfg.Dialer, st, st, log)
			if err != nil {
				return fmt.Errorf("creating dialer: %w", err)
			}

			hookMgr := hooks.NewManager(log)
			hooks.RegisterConfig(hookMgr, cfg.Hooks)

			hub := broadcast.NewHub(cfg.Campaign.SubscriberBuffer, log)
			agents := campaign.NewRegistry(runner, log, registryOptions(cfg.Campaign, st, hub, hookMgr)...)
			defer agents.Close()

			srv := gateway.New(cfg, agents, hub, log,
				gateway.WithHooks(hookMgr),
				gateway.WithStore(st),
			)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Start(gctx) })
			g.Go(func() error { return agents.Run(gctx) })

			if cfg.Notify.IRC != nil {
				notifier := irc.New(*cfg.Notify.IRC, log)
				notifier.Register(hookMgr)
				g.Go(func() error {
					// Losing IRC only loses notices; the gateway keeps serving.
					if err := notifier.Run(gctx); err != nil {
						log.Warn().Err(err).Msg("irc notifier stopped")
					}
					return nil
				})
			}

			err = g.Wait()
			drainCtx, cancel := context.WithTimeout(context.Background(), hooks.DefaultCommandTimeout)
			defer cancel()
			// agents fail their in-flight calls first, then their hooks drain
			if serr := agents.Shutdown(drainCtx); serr != nil {
				log.Warn().Err(serr).Msg("agents still running at shutdown")
			}
			if derr := hookMgr.Drain(drainCtx); derr != nil {
				log.Warn().Err(derr).Msg("hooks still running at shutdown")
			}
			return err
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().StringVar(&mode, "dialer", "", "override dialer mode (mock, live)")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-exec the gateway when the outreach binary is rebuilt")

	return cmd
}

// registryOptions maps campaign config onto registry options.
func registryOptions(cfg config.CampaignConfig, st store.Store, pub campaign.Publisher, hm *hooks.Manager) []campaign.Option {
	opts := []campaign.Option{
		campaign.WithDefaultDelay(cfg.DefaultDelaySeconds),
		campaign.WithCallTimeout(time.Duration(cfg.CallTimeoutSeconds) * time.Second),
		campaign.WithRetention(time.Duration(cfg.RetentionMinutes) * time.Minute),
		campaign.WithSweepInterval(time.Duration(cfg.SweepIntervalSeconds) * time.Second),
	}
	if st != nil {
		opts = append(opts, campaign.WithLeadDirectory(st), campaign.WithRecorder(st))
	}
	if pub != nil {
		opts = append(opts, campaign.WithPublisher(pub))
	}
	if hm != nil {
		opts = append(opts, campaign.WithHooks(hm))
	}
	return opts
}
