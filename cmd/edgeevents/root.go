package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyra/edge-events/internal/config"
	"github.com/cyra/edge-events/internal/hostcmd"
	"github.com/cyra/edge-events/internal/logging"
	"github.com/cyra/edge-events/internal/pipeline"
)

// globals holds the flags shared by every subcommand.
type globals struct {
	configPath  string
	assetID     string
	logLevel    string
	logJSON     bool
	filter      string
	trustXFF    bool
	metricsFile string
	pushgateway string

	// commands overrides the host command runner in tests.
	commands hostcmd.Runner
}

func newRootCmd(commands hostcmd.Runner) *cobra.Command {
	g := &globals{commands: commands}
	root := &cobra.Command{
		Use:   "edgeevents",
		Short: "Normalize host logs into a canonical NDJSON event stream",
		Long: `edgeevents reads web, load balancer, firewall, DNS, syslog and
application logs, finds them when no input is given, and writes one
canonical JSON event per line.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", "", "path to YAML configuration file")
	f.StringVar(&g.assetID, "asset-id", "", "asset id stamped on every event (overrides config)")
	f.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.BoolVar(&g.logJSON, "log-json", false, "log as JSON")
	f.StringVar(&g.filter, "filter", "", `keep only events matching this expression, e.g. 'event_type == "auth"'`)
	f.BoolVar(&g.trustXFF, "trust-xff", false, "resolve web clients from X-Forwarded-For")
	f.StringVar(&g.metricsFile, "metrics-file", "", "write run metrics to this node_exporter textfile")
	f.StringVar(&g.pushgateway, "pushgateway", "", "push run metrics to this Pushgateway URL")

	for _, src := range pipeline.BundleOrder {
		root.AddCommand(newSourceCmd(g, src))
	}
	root.AddCommand(newBundleCmd(g))
	root.AddCommand(newMergeCmd())
	return root
}

// setup loads configuration, applies flag overrides, and builds the logger
// and runner.
func (g *globals) setup(cmd *cobra.Command) (*config.Config, *logging.Logger, *pipeline.Runner, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("asset-id") {
		cfg.AssetID = g.assetID
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON = g.logJSON
	}
	if flags.Changed("filter") {
		cfg.Filter = g.filter
	}
	if flags.Changed("trust-xff") {
		cfg.Parser.TrustXFF = g.trustXFF
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile = g.metricsFile
	}
	if flags.Changed("pushgateway") {
		cfg.Metrics.Pushgateway = g.pushgateway
	}
	if cfg.AssetID == "" {
		return nil, nil, nil, fmt.Errorf("asset id is required: pass --asset-id or set asset_id in the config")
	}

	logger, err := logging.New(cfg.LoggingOptions())
	if err != nil {
		return nil, nil, nil, err
	}
	commands := g.commands
	if commands == nil {
		commands = hostcmd.NewExec(logger)
	}
	runner, err := pipeline.NewRunner(cfg, logger, commands)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Debugf("edgeevents %s, asset %s", version, cfg.AssetID)
	return cfg, logger, runner, nil
}

// exportMetrics writes or pushes the run metrics as configured. Export
// failures are logged and do not fail the run.
func exportMetrics(cfg *config.Config, logger *logging.Logger, runner *pipeline.Runner) {
	m := runner.Metrics()
	m.Finish()
	if cfg.Metrics.Textfile != "" {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Errorf("%v", err)
		}
	}
	if err := m.Push(cfg.Metrics.Pushgateway, cfg.AssetID, logger); err != nil {
		logger.Errorf("%v", err)
	}
}
