package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskscribe/internal/config"
)

type rootOptions struct {
	configPath string
	apiAddr    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "taskscribe",
		Short: "Submit and track conversation to-do extraction jobs",
		Long: `taskscribe is the client for the taskscribed daemon. It uploads
recordings, follows jobs through transcription, diarization, to-do
extraction, assignment and export, and fetches the final per-person
to-do list.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.apiAddr, "addr", "", "daemon API address (host:port), overrides config")

	cmd.AddCommand(
		newAddCommand(opts),
		newJobsCommand(opts),
		newShowCommand(opts),
		newResultCommand(opts),
		newCancelCommand(opts),
		newStatusCommand(opts),
		newConfigCommand(),
	)
	return cmd
}

// client resolves the daemon address from the flag or config file and
// returns an API client for it.
func (o *rootOptions) client() (*apiClient, error) {
	addr := o.apiAddr
	if addr == "" {
		cfg, _, _, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		addr = cfg.Paths.APIBind
	}
	if addr == "" {
		return nil, fmt.Errorf("no daemon address configured")
	}
	return newAPIClient("http://" + addr), nil
}
