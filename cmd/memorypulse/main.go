// cmd/memorypulse/main.go
//
// Entry point for the Memory Pulse server.
//
//	memorypulse serve    run the HTTP/websocket game server
//	memorypulse levels   print the campaign table

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var levelsFile string

var rootCmd = &cobra.Command{
	Use:   "memorypulse",
	Short: "Memory Pulse game server",
	Long: `memorypulse serves the Memory Pulse memory game: a board of face-down
tiles shown briefly, then matched under time pressure across 50 levels.

Start the server
	memorypulse serve

List the levels
	memorypulse levels
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&levelsFile, "levels-file", "", "YAML level table to use instead of the built-in one (env LEVELS_FILE)")
	rootCmd.AddCommand(serveCmd, levelsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
