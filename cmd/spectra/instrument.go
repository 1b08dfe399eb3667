package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/client"
)

// instrumentCommand builds one of the state-changing instrument verbs.
func instrumentCommand(use, short, long string, call func(*client.Client, context.Context) (*spectrav1.Status, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDaemon(10*time.Second, func(ctx context.Context, c *client.Client) error {
				st, err := call(c, ctx)
				if err != nil {
					return err
				}
				if !getQuiet() {
					printStatus(cmd.OutOrStdout(), st)
				}
				return nil
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(
		instrumentCommand("status", "Show instrument status",
			`Show the instrument state, operate preventers and acquisition progress.`,
			(*client.Client).Status),
		instrumentCommand("pump-down", "Evacuate the vented instrument",
			`Start the vacuum pump. The instrument reaches standby once the
vacuum is good and the settle time has passed.`,
			(*client.Client).PumpDown),
		instrumentCommand("operate", "Switch the instrument on",
			`Switch on high voltage. Fails while any operate preventer is active.`,
			(*client.Client).Operate),
		instrumentCommand("standby", "Switch the instrument to standby",
			`Switch off high voltage and keep the vacuum.`,
			(*client.Client).Standby),
		instrumentCommand("vent", "Vent the instrument",
			`Stop the pump and vent. Not allowed while operating.`,
			(*client.Client).Vent),
	)
}
