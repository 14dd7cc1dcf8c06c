package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"triggergate/pkg/config"
	"triggergate/pkg/logging"
	"triggergate/pkg/trigger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	Year       int
	Dataset    string
	MC         bool

	// Set by the persistent pre-run.
	Config *config.Config
	Logger *slog.Logger
}

// NewRootCommand creates the root command of the triggergate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "triggergate",
		Short: "Filter collision events on their upstream trigger decisions",
		Long: `triggergate accepts or rejects events based on which upstream triggers fired.

Configured trigger names are pass, veto or ignore rules. Runtime trigger names
match a rule when the rule name is a prefix of them, so HLT_Mu matches HLT_Mu_v3.
Accepted events carry a triggersFired bitmask indexed by rule ordinal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath, opts.flagOverrides(cmd.Flags()))
			if err != nil {
				return err
			}
			opts.Config = cfg
			opts.Logger = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "json", "log format (json|text)")
	cmd.PersistentFlags().IntVar(&opts.Year, "year", 0, "data-taking year of the trigger profile")
	cmd.PersistentFlags().StringVar(&opts.Dataset, "dataset", "", "dataset of the trigger profile")
	cmd.PersistentFlags().BoolVar(&opts.MC, "mc", false, "simulated sample; selects the MC trigger profile of the year")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTableCommand(opts))
	cmd.AddCommand(NewLintCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewPublishMenuCommand(opts))

	return cmd
}

// flagOverrides applies the flags given on the command line over the file
// and environment settings.
func (o *RootOptions) flagOverrides(flags *pflag.FlagSet) func(*config.Config) {
	return func(cfg *config.Config) {
		if flags.Changed("log-level") {
			cfg.Log.Level = o.LogLevel
		}
		if flags.Changed("log-format") {
			cfg.Log.Format = o.LogFormat
		}
		if flags.Changed("year") {
			cfg.Filter.Year = o.Year
		}
		if flags.Changed("dataset") {
			cfg.Filter.Dataset = o.Dataset
		}
		if flags.Changed("mc") {
			cfg.Filter.MC = o.MC
		}
	}
}

// registry builds the rule registry from the filter configuration.
func (o *RootOptions) registry() *trigger.Registry {
	f := o.Config.Filter
	return trigger.Build(f.PassTriggers, f.VetoTriggers, f.IgnoreTriggers)
}

func listenAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}
