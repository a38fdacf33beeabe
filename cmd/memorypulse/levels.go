// cmd/memorypulse/levels.go
//
// `memorypulse levels`: prints the level table that `serve` would load.

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/robalobadob/memorypulse/internal/levels"
)

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Print the level table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tLABEL\tGRID\tMATCH\tMEMORIZE\tPLAY\tLIVES\tMUTATORS")
		for _, l := range levels.All() {
			muts := make([]string, 0, len(l.Mutators))
			for _, m := range l.Mutators {
				muts = append(muts, string(m))
			}
			fmt.Fprintf(tw, "%d\t%s\t%dx%d\t%d\t%s\t%s\t%d\t%s\n",
				l.ID, l.Label, l.Grid.Rows, l.Grid.Cols, l.MatchCount,
				l.Memorize, l.Play, l.Lives, strings.Join(muts, ","))
		}
		return tw.Flush()
	},
}
