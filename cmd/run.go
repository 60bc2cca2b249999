package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/prospectline/prospector/internal/model"
)

var runCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a scraping job synchronously",
	Long:  "Claims the job, scrapes every search term and location pair, reconciles the results into the business collection, and prints the finished job.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		engine := initEngine(st)
		runErr := engine.Run(ctx, args[0])

		// The job document carries the outcome either way; show it
		// before reporting the error.
		if job, getErr := st.GetJob(ctx, args[0]); getErr == nil {
			printJob(job)
		}

		if runErr != nil {
			return eris.Wrap(runErr, "run")
		}
		return nil
	},
}

func printJob(job *model.ScrapingJob) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(job)
}

func init() {
	rootCmd.AddCommand(runCmd)
}
