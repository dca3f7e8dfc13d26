package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cyra/edge-events/internal/pipeline"
	"github.com/cyra/edge-events/internal/sink"
)

var sourceHelp = map[pipeline.Source]string{
	pipeline.Web:      "Parse nginx/apache access logs",
	pipeline.ALB:      "Parse AWS ALB and classic ELB access logs",
	pipeline.Firewall: "Parse firewall and flow logs (kv, CEF, JSON, CSV)",
	pipeline.DNS:      "Parse BIND, dnsmasq and unbound query logs",
	pipeline.Syslog:   "Parse syslog for flows, DNS queries and logins",
	pipeline.App:      "Parse application logs for logins and config changes",
}

var sourceAliases = map[pipeline.Source][]string{
	pipeline.Web: {"nginx", "apache"},
	pipeline.ALB: {"elb"},
}

func newSourceCmd(g *globals, src pipeline.Source) *cobra.Command {
	var req pipeline.Request
	cmd := &cobra.Command{
		Use:     string(src),
		Aliases: sourceAliases[src],
		Short:   sourceHelp[src],
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, runner, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			req.Source = src
			sum, err := runner.Run(cmd.Context(), req)
			exportMetrics(cfg, logger, runner)
			if err != nil {
				return err
			}
			if req.Out != sink.Stdout {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events (%s) -> %s\n", src, sum.Events, sum.Mode, req.Out)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&req.Inputs, "input", "i", nil, "input file or glob (repeatable); skips discovery")
	f.StringArrayVar(&req.Roots, "root", nil, "discovery root (repeatable)")
	f.IntVar(&req.MaxFiles, "max-files", 0, "discovery file budget (0 keeps the configured value)")
	f.Int64Var(&req.MaxTotalBytes, "max-bytes", 0, "discovery byte budget (0 keeps the configured value)")
	f.StringVarP(&req.Out, "out", "o", sink.Stdout, `output NDJSON file, "-" for stdout`)
	f.StringVar(&req.ReportPath, "report", "", "write the discovery report to this file")
	return cmd
}

func newBundleCmd(g *globals) *cobra.Command {
	var (
		req     pipeline.BundleRequest
		sources []string
	)
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Run every source into a directory and merge the outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range sources {
				src, err := pipeline.ParseSource(name)
				if err != nil {
					return err
				}
				req.Sources = append(req.Sources, src)
			}
			cfg, logger, runner, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			sum, err := runner.Bundle(cmd.Context(), req)
			exportMetrics(cfg, logger, runner)
			if err != nil {
				return err
			}
			for _, s := range sum.Runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events (%s)\n", s.Source, s.Events, s.Mode)
			}
			for _, s := range sum.Missing {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no input\n", s)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d events -> %s\n", sum.Events, sum.Merged)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.OutDir, "out-dir", "", "directory for per-source outputs")
	f.StringVar(&req.Merged, "merged", "", "merged output file (default <out-dir>/events.jsonl)")
	f.StringSliceVar(&sources, "sources", nil, "sources to run (default all)")
	f.StringArrayVar(&req.Roots, "root", nil, "discovery root (repeatable)")
	f.BoolVar(&req.Reports, "reports", false, "write <source>.report.json next to each output")
	_ = cmd.MarkFlagRequired("out-dir")
	return cmd
}

func newMergeCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "merge --out FILE INPUT...",
		Short: "Concatenate NDJSON event files in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := sink.Merge(out, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d events -> %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "merged output file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
