package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dtambussi/fanout/internal/cache"
	"github.com/dtambussi/fanout/internal/config"
	"github.com/dtambussi/fanout/internal/repository"
)

func init() {
	rootCmd.AddCommand(demoResetCmd)
}

var demoResetCmd = &cobra.Command{
	Use:   "demo-reset",
	Short: "Wipe every relational table and the entire cache",
	Long: `Truncates users, posts, follows, and the outbox, then flushes Redis,
so a fresh demo run starts from a clean slate. Equivalent to the
POST /api/v1/demo/reset endpoint, callable without a running server.`,
	Run: runDemoReset,
}

func runDemoReset(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()

	db, err := repository.Connect(cfg.Postgres)
	if err != nil {
		fmt.Printf("failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		fmt.Printf("failed to connect to redis: %v\n", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	outboxStore := repository.NewOutboxStore(db)
	follows := repository.NewFollowStore(db)
	posts := repository.NewPostStore(db)
	users := repository.NewUserStore(db)

	if err := outboxStore.Truncate(ctx); err != nil {
		fmt.Printf("failed to truncate outbox: %v\n", err)
		os.Exit(1)
	}
	if err := follows.Truncate(ctx); err != nil {
		fmt.Printf("failed to truncate follows: %v\n", err)
		os.Exit(1)
	}
	if err := posts.Truncate(ctx); err != nil {
		fmt.Printf("failed to truncate posts: %v\n", err)
		os.Exit(1)
	}
	if err := users.Truncate(ctx); err != nil {
		fmt.Printf("failed to truncate users: %v\n", err)
		os.Exit(1)
	}
	if err := cache.FlushAll(ctx, redisClient); err != nil {
		fmt.Printf("failed to flush cache: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("reset complete")
}
