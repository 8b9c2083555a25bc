package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/chess-rooms/internal/config"
	"github.com/park285/chess-rooms/internal/roomcache"
	"github.com/park285/chess-rooms/pkg/roomdto"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List live rooms mirrored in Redis",
	Long: `Print the rooms a running server mirrors to REDIS_URL, plus the matchmaking queue depth.

Examples:
  REDIS_URL=redis://localhost:6379/0 chess-server rooms`,
	Args: cobra.NoArgs,
	RunE: runRooms,
}

func runRooms(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is not set")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	store, err := roomcache.Open(ctx, cfg.RedisURL, cfg.RoomMirrorTTL)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	snaps, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	queue, err := store.LoadQueue(ctx)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No live rooms.")
	} else {
		fmt.Fprintf(out, "  %-40s  %-6s  %-5s  %-6s  %s\n", "Room", "Mode", "Turn", "Moves", "Status")
		for _, s := range snaps {
			fmt.Fprintf(out, "  %-40s  %-6s  %-5s  %-6d  %s\n", s.RoomID, roomMode(s), s.SideToMove, len(s.MoveHistory), roomStatus(s))
		}
	}
	fmt.Fprintf(out, "\nWaiting in matchmaking: %d\n", len(queue))
	return nil
}

func roomMode(s *roomdto.Snapshot) string {
	if s.IsBotGame {
		return "bot"
	}
	return "pvp"
}

func roomStatus(s *roomdto.Snapshot) string {
	if s.IsGameOver {
		return s.Result + " " + s.Termination
	}
	if s.IsCheck {
		return "check"
	}
	return "playing"
}
