// Command posh-debugger loads POSH behavior plans and bridges robot
// telemetry onto them.
package main

import (
	"fmt"
	"os"

	"github.com/dd0wney/posh-debugger/pkg/config"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "posh-debugger",
		Short:         "Behavior-plan debugger for POSH robots",
		Long:          `Loads XPOSH behavior plans, streams command scripts to robots and marks plan elements as the robot reports executing them.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newSendCmd(opts))
	return root
}

// load reads the configuration file, if any, and applies global flags.
func (o *rootOptions) load() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
