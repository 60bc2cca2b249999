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

var businessesCmd = &cobra.Command{
	Use:   "businesses",
	Short: "Inspect the reconciled business collection",
}

var businessesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List businesses",
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

		source, _ := cmd.Flags().GetString("source")
		city, _ := cmd.Flags().GetString("city")
		limit, _ := cmd.Flags().GetInt("limit")

		businesses, err := st.ListBusinesses(ctx, store.BusinessFilter{
			Source: model.Source(source),
			City:   city,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "businesses list")
		}

		if len(businesses) == 0 {
			fmt.Fprintln(os.Stderr, "No businesses found.")
			return nil
		}

		formatBusinessesList(os.Stdout, businesses)
		return nil
	},
}

var businessesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show business counts per source",
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

		counts, err := st.CountBySource(ctx)
		if err != nil {
			return eris.Wrap(err, "businesses stats")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for src, n := range counts {
			_, _ = fmt.Fprintf(w, "%s:\t%d\n", src, n)
		}
		return w.Flush()
	},
}

func init() {
	businessesListCmd.Flags().String("source", "", "filter by source (google_maps, insee, ...)")
	businessesListCmd.Flags().String("city", "", "filter by city")
	businessesListCmd.Flags().Int("limit", 50, "max number of businesses to display")

	businessesCmd.AddCommand(businessesListCmd)
	businessesCmd.AddCommand(businessesStatsCmd)
	rootCmd.AddCommand(businessesCmd)
}

// formatBusinessesList writes a tabular list of businesses to w.
func formatBusinessesList(out io.Writer, businesses []model.Business) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tCITY\tSIRET\tPHONE\tSOURCE")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t-----\t-----\t------")

	for _, b := range businesses {
		name := b.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(b.ID),
			name,
			b.Address.City,
			b.Registration.Siret,
			b.Contact.Phone,
			b.Scraping.Source,
		)
	}
	_ = w.Flush()
}
