package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageq/internal/report"
	"stageq/internal/storage"
	"stageq/internal/tui/history"
)

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show and delete saved runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(v, func(store *storage.Store) error {
				records, err := store.List(limit)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs saved yet.")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTARTED\tTARGET\tMODE\tREQS\tERRORS\tP95\tRESULT")
				for i, row := range history.Rows(records) {
					fmt.Fprintf(tw, "%s\t%s\n", records[i].Report.ID, strings.Join(row, "\t"))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list (0 = all)")

	var asJSON bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the report of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(v, func(store *storage.Store) error {
				rec, err := store.Get(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return report.WriteJSON(cmd.OutOrStdout(), rec.Report)
				}
				report.WriteText(cmd.OutOrStdout(), rec.Report)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	rm := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete saved runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(v, func(store *storage.Store) error {
				for _, id := range args {
					if err := store.Delete(id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, rm)
	return cmd
}

func withStore(v *viper.Viper, fn func(*storage.Store) error) error {
	path := v.GetString("output.history_path")
	if path == "" {
		var err error
		if path, err = storage.DefaultPath(); err != nil {
			return err
		}
	}
	store, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
