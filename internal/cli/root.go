package cli

import (
	"os"

	"github.com/soyeahso/outreach/internal/config"
	"github.com/soyeahso/outreach/internal/logging"
	"github.com/spf13/cobra"
)

// LogLevelEnv overrides the configured log level when --log-level is unset.
const LogLevelEnv = "OUTREACH_LOG_LEVEL"

const (
	groupRun  = "run"
	groupData = "data"
)

var (
	flags struct {
		config   string
		home     string
		logLevel string
	}

	// set by the root command before any subcommand runs
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outreach",
		Short: "Outbound call campaign orchestrator",
		Long: `outreach runs calling agents. Each agent works through its own lead
queue one call at a time and reports every state change to subscribed
clients over the gateway.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "config file (default $OUTREACH_HOME/config.yaml)")
	pf.StringVar(&flags.home, "home", "", "state directory (default $OUTREACH_HOME or ~/.outreach)")
	pf.StringVar(&flags.logLevel, "log-level", "", "trace, debug, info, warn, error or silent (env "+LogLevelEnv+")")

	cmd.AddGroup(
		&cobra.Group{ID: groupRun, Title: "Campaigns:"},
		&cobra.Group{ID: groupData, Title: "Leads and transcripts:"},
	)
	for _, sub := range []*cobra.Command{newServeCmd(), newAgentCmd(), newSimulateCmd()} {
		sub.GroupID = groupRun
		cmd.AddCommand(sub)
	}
	for _, sub := range []*cobra.Command{newLeadsCmd(), newParseCmd()} {
		sub.GroupID = groupData
		cmd.AddCommand(sub)
	}
	cmd.AddCommand(newConfigCmd(), newStatusCmd(), newVersionCmd())

	return cmd
}

// setup resolves the state paths and builds the startup logger.
func setup(*cobra.Command, []string) error {
	var err error
	if flags.home != "" {
		paths = config.PathsUnder(flags.home)
	} else if paths, err = config.ResolvePaths(); err != nil {
		return err
	}
	if flags.config != "" {
		paths.Config = flags.config
	}
	log = logging.New(nil, startupLevel())
	return nil
}

// startupLevel is the level used until a config file is loaded.
func startupLevel() string {
	if flags.logLevel != "" {
		return flags.logLevel
	}
	return os.Getenv(LogLevelEnv)
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads the config file. The config's logging section replaces
// the startup logger unless a level was forced by flag or environment.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	level := startupLevel()
	if level == "" {
		level = cfg.Logging.Level
	}
	log = logging.NewConsole(level, cfg.Logging.ConsoleStyle)
	return cfg, nil
}
