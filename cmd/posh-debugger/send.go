package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dd0wney/posh-debugger/pkg/logging"
	"github.com/dd0wney/posh-debugger/pkg/metrics"
	"github.com/dd0wney/posh-debugger/pkg/plan"
	"github.com/dd0wney/posh-debugger/pkg/plan/xposh"
	"github.com/dd0wney/posh-debugger/pkg/telemetry"
	"github.com/spf13/cobra"
)

type sendOptions struct {
	planPath string
	script   string
	pacing   time.Duration
	display  bool
	timeout  time.Duration
}

func newSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send <host:port>",
		Short: "Connect to a robot and run one session",
		Long:  `Dials a robot that listens for the debugger, streams the command script, then decodes status lines against the plan until the robot says bye or disconnects.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger := cfg.Logger()

			reg := plan.NewRegistry()
			planPath := opts.planPath
			if planPath == "" {
				planPath = cfg.Plan.Path
			}
			if planPath != "" {
				if _, err := xposh.NewLoader(reg, xposh.WithLogger(logger)).LoadFile(planPath); err != nil {
					return err
				}
			}

			session := cfg.SessionConfig()
			if cmd.Flags().Changed("script") {
				session.Script = opts.script
			}
			if cmd.Flags().Changed("pacing") {
				session.Pacing = opts.pacing
			}
			if cmd.Flags().Changed("display") {
				session.Display = opts.display
			}
			session.Echo = cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dialCtx, cancel := context.WithTimeout(ctx, opts.timeout)
			defer cancel()
			s, err := telemetry.Dial(dialCtx, args[0], session, telemetry.Deps{
				Registry: reg,
				Metrics:  metrics.NewRegistry(),
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			logger.Info("connected", logging.String("addr", args[0]), logging.String("session", s.ID()))
			return s.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&opts.planPath, "plan", "p", "", "Plan document (default: plan.path from config)")
	cmd.Flags().StringVarP(&opts.script, "script", "s", "", "Command script to stream (default: telemetry.script from config)")
	cmd.Flags().DurationVar(&opts.pacing, "pacing", telemetry.DefaultPacing, "Minimum gap between forwarded command lines")
	cmd.Flags().BoolVarP(&opts.display, "display", "d", false, "Echo decoded telemetry lines")
	cmd.Flags().DurationVar(&opts.timeout, "dial-timeout", 10*time.Second, "Connection timeout")
	return cmd
}
