package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/chess-rooms/internal/config"
	"github.com/park285/chess-rooms/internal/history"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently finished games",
	Long: `Print the newest finished games stored in DATABASE_URL.

Examples:
  DATABASE_URL=sqlite://./games.db chess-server history
  chess-server history --limit 50`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "Number of games to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	repo, err := history.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	recs, err := repo.Recent(ctx, flagHistoryLimit)
	if err != nil {
		return fmt.Errorf("recent games: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No finished games recorded yet.")
		return nil
	}
	fmt.Fprintf(out, "  %-16s  %-20s  %-20s  %-7s  %-6s  %s\n", "Ended", "White", "Black", "Result", "Moves", "Termination")
	for _, r := range recs {
		fmt.Fprintf(out, "  %-16s  %-20s  %-20s  %-7s  %-6d  %s\n",
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			player(r.WhiteUser, r.WhiteID),
			player(r.BlackUser, r.BlackID),
			r.Result, r.MoveCount, r.Termination,
		)
	}
	return nil
}

func player(user, conn string) string {
	if user != "" {
		return user
	}
	if len(conn) > 8 {
		return conn[:8]
	}
	return conn
}
