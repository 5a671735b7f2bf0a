// Package cli provides the command-line interface for postmirror.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

const defaultConfigDir = ".postmirror"

var configDir string

var rootCmd = &cobra.Command{
	Use:   "postmirror",
	Short: "Mirror an X/Twitter account's posts to a Discord webhook",
	Long: "postmirror polls an account timeline, renders every new post as a chat message, " +
		"delivers it to a Discord webhook, and remembers how far it got.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("postmirror %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", defaultConfigDir, "config directory")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
