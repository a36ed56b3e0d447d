package cmd

import (
	"fmt"
	"log"
	"os"

	"RoomFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roomfm",
	Short: "RoomFM runs artist-themed listening rooms with a shared playback clock.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting RoomFM server...")
		// server.Start handles its own port and logging for startup.
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
