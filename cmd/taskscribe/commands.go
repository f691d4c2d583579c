package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"taskscribe/internal/config"
)

func newAddCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <audio-file>",
		Short: "Upload a recording and queue it for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("audio file: %w", err)
			}
			job, err := client.submit(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued job %s\n", job.JobID)
			return nil
		},
	}
}

func newJobsCommand(opts *rootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			jobList, err := client.list(cmd.Context(), status)
			if err != nil {
				return err
			}
			if len(jobList) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
				return nil
			}
			renderJobsTable(cmd.OutOrStdout(), jobList)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (queued, transcribing, ..., completed, failed, cancelled)")
	return cmd
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's stage progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			job, err := client.get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job %s: %s\n", job.JobID, job.Status)
			if job.ExtractionMode != "" {
				fmt.Fprintf(out, "extraction mode: %s\n", job.ExtractionMode)
			}
			if job.FailureReason != "" {
				fmt.Fprintf(out, "reason: %s\n", job.FailureReason)
			}
			for _, warning := range job.Warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			renderJobDetail(out, job)
			return nil
		},
	}
}

func newResultCommand(opts *rootOptions) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Fetch the per-person to-do list for a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			content, err := client.result(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outputPath != "" {
				if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outputPath)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), content)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the result to a file instead of stdout")
	return cmd
}

func newCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			job, err := client.cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job.Status == "cancelled" {
				fmt.Fprintf(cmd.OutOrStdout(), "job %s cancelled\n", job.JobID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for job %s (takes effect at the next stage boundary)\n", job.JobID)
			}
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon queue counts and stage dependency health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			status, err := client.daemonStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			q := status.Queue
			fmt.Fprintf(out, "jobs: %d total, %d queued, %d processing, %d completed, %d failed, %d cancelled\n",
				q.Total, q.Queued, q.Processing, q.Completed, q.Failed, q.Cancelled)
			for _, st := range status.Stages {
				state := "ready"
				if !st.Ready {
					state = "degraded"
				}
				line := fmt.Sprintf("%-12s %s", st.Stage, state)
				if st.Detail != "" {
					line += "  (" + st.Detail + ")"
				}
				fmt.Fprintln(out, strings.TrimRight(line, " "))
			}
			return nil
		},
	}
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented sample config to the default location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
