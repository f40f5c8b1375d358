package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewNavigateCmd creates the navigate subcommand.
func NewNavigateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "navigate <path>",
		Short: "Run one guarded navigation and print where it lands",
		Long: `Navigate resolves path against the route table, runs the navigation
guard with the current session, and follows any redirect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := startApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Navigate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			table := app.Router().Table()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "requested: %s\n", table.PublicPath(res.Requested.Path))
			fmt.Fprintf(out, "landed:    %s\n", table.PublicPath(res.To.Path))
			if res.To.Name != "" {
				fmt.Fprintf(out, "route:     %s\n", res.To.Name)
			}
			hops := make([]string, 0, len(res.Decisions))
			for _, d := range res.Decisions {
				hops = append(hops, d.Outcome.String())
			}
			fmt.Fprintf(out, "decisions: %s\n", strings.Join(hops, ","))
			return nil
		},
	}
}
