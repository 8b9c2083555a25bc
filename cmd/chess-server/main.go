// chess-server hosts real-time chess rooms over WebSocket.
//
// Usage:
//
//	chess-server serve              - Run the HTTP/WebSocket server
//	chess-server rooms              - List live rooms mirrored in Redis
//	chess-server history [--limit]  - Show recently finished games
//
// Configuration comes from the environment (and an optional .env file); see internal/config.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chess-server",
	Short: "Real-time chess rooms, matchmaking and bot opponents",
	Long: `chess-server runs chess rooms for WebSocket clients: two-player games,
first-come matchmaking and games against a built-in bot.

Examples:
  chess-server serve
  chess-server rooms
  chess-server history --limit 50`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(roomsCmd)
	rootCmd.AddCommand(historyCmd)
}
