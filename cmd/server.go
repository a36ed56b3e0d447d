package cmd

import (
	"RoomFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the RoomFM server",
	Long:  `Start the RoomFM HTTP server, serving the room engine API and the snapshot websocket feed.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
