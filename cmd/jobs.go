package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/prospectline/prospector/internal/model"
	"github.com/prospectline/prospector/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scraping jobs",
}

// -- jobs list --

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scraping jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		owner, _ := cmd.Flags().GetString("owner")
		status, _ := cmd.Flags().GetString("status")
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Owner:  owner,
			Status: model.JobStatus(status),
			Source: model.Source(source),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

// -- jobs create --

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a scraping job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		owner, _ := cmd.Flags().GetString("owner")
		source, _ := cmd.Flags().GetString("source")
		terms, _ := cmd.Flags().GetStringSlice("term")
		locations, _ := cmd.Flags().GetStringSlice("location")
		filters, _ := cmd.Flags().GetStringToString("filter")

		if name == "" || source == "" || len(locations) == 0 {
			return eris.New("jobs create: --name, --source and at least one --location are required")
		}

		job := &model.ScrapingJob{
			Name:        name,
			Owner:       owner,
			Source:      model.Source(source),
			SearchTerms: terms,
			Locations:   locations,
			Filters:     filters,
		}
		if err := st.CreateJob(ctx, job); err != nil {
			return eris.Wrap(err, "jobs create")
		}

		fmt.Println(job.ID)
		return nil
	},
}

// -- jobs show --

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show full details of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "jobs show")
		}

		printJob(job)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("owner", "", "filter by owner")
	jobsListCmd.Flags().String("status", "", "filter by status (pending, in_progress, completed, failed, paused)")
	jobsListCmd.Flags().String("source", "", "filter by source (google_maps, insee, ...)")
	jobsListCmd.Flags().Int("limit", 50, "max number of jobs to display")

	jobsCreateCmd.Flags().String("name", "", "job name")
	jobsCreateCmd.Flags().String("owner", "cli", "job owner")
	jobsCreateCmd.Flags().String("source", "", "source to scrape (google_maps, insee)")
	jobsCreateCmd.Flags().StringSlice("term", nil, "search term (repeatable)")
	jobsCreateCmd.Flags().StringSlice("location", nil, "location (repeatable)")
	jobsCreateCmd.Flags().StringToString("filter", nil, "source filter, e.g. naf_code=10.71C")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobsList writes a tabular list of jobs to w.
func formatJobsList(out io.Writer, jobs []model.ScrapingJob) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSOURCE\tSTATUS\tPROGRESS\tRESULTS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t------\t--------\t-------\t-------")

	for _, j := range jobs {
		name := j.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%d\t%s\n",
			truncateID(j.ID),
			name,
			j.Source,
			j.Status,
			j.Progress,
			j.ResultsCount,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
