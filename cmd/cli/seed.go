package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dtambussi/fanout/internal/cache"
	"github.com/dtambussi/fanout/internal/config"
	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/repository"
)

var (
	seedUsers        int
	seedAvgFollowers int
	seedCelebrities  int
	seedPostsPerUser int
	seedClear        bool
)

func init() {
	seedCmd.Flags().IntVar(&seedUsers, "users", 10000, "Number of users to create")
	seedCmd.Flags().IntVar(&seedAvgFollowers, "avg-followers", 150, "Average followers per user")
	seedCmd.Flags().IntVar(&seedCelebrities, "celebrities", 50, "Number of celebrity users")
	seedCmd.Flags().IntVar(&seedPostsPerUser, "posts-per-user", 10, "Posts per user")
	seedCmd.Flags().BoolVar(&seedClear, "clear", false, "Clear existing data before seeding")

	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with test data",
	Long: `Generate test users, follows, and posts for exercising the pipeline.

This creates a realistic social graph with:
  - Regular users with varying follower counts
  - Celebrity users with high follower counts
  - Follow relationships, about 30% of them aimed at the celebrity users
  - Sample posts for each user

Seeded rows are inserted directly rather than through the write path, so no
outbox events are produced for this data; it exists to populate the read
side without driving the event pipeline.`,
	Run: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) {
	fmt.Println("Seeding database...")
	fmt.Printf("   Users: %d\n", seedUsers)
	fmt.Printf("   Avg followers: %d\n", seedAvgFollowers)
	fmt.Printf("   Celebrities: %d\n", seedCelebrities)
	fmt.Printf("   Posts per user: %d\n", seedPostsPerUser)
	fmt.Println()

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

	users := repository.NewUserStore(db)
	posts := repository.NewPostStore(db)
	follows := repository.NewFollowStore(db)

	if seedClear {
		fmt.Println("Clearing existing data...")
		follows.Truncate(ctx)
		posts.Truncate(ctx)
		users.Truncate(ctx)
		cache.FlushAll(ctx, redisClient)
		fmt.Println("   done")
	}

	fmt.Printf("Creating %d users...\n", seedUsers)
	start := time.Now()

	usernames := make([]string, seedUsers)
	for i := 0; i < seedUsers; i++ {
		usernames[i] = fmt.Sprintf("user_%d", i+1)
	}

	const batchSize = 1000
	for i := 0; i < len(usernames); i += batchSize {
		end := min(i+batchSize, len(usernames))
		if err := users.BulkCreate(ctx, usernames[i:end]); err != nil {
			fmt.Printf("failed to create users: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("   created %d/%d users\r", end, seedUsers)
	}
	fmt.Printf("   created %d users in %v\n", seedUsers, time.Since(start))

	allUsers, err := users.GetAll(ctx, seedUsers, 0)
	if err != nil {
		fmt.Printf("failed to load users: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Creating follow relationships...")
	start = time.Now()

	numCelebrities := min(seedCelebrities, len(allUsers))

	var followerIDs, followeeIDs []idgen.ID
	totalFollows := seedUsers * seedAvgFollowers
	for i := 0; i < totalFollows; i++ {
		followerIdx := rand.Intn(len(allUsers))

		var followeeIdx int
		if rand.Float64() < 0.3 && numCelebrities > 0 {
			followeeIdx = rand.Intn(numCelebrities)
		} else {
			followeeIdx = rand.Intn(len(allUsers))
		}
		if followerIdx == followeeIdx {
			continue
		}

		followerIDs = append(followerIDs, allUsers[followerIdx].ID)
		followeeIDs = append(followeeIDs, allUsers[followeeIdx].ID)
	}

	for i := 0; i < len(followerIDs); i += batchSize {
		end := min(i+batchSize, len(followerIDs))
		if err := follows.BulkCreate(ctx, followerIDs[i:end], followeeIDs[i:end]); err != nil {
			fmt.Printf("warning: some follows failed: %v\n", err)
		}
		fmt.Printf("   created %d/%d follows\r", end, len(followerIDs))
	}
	fmt.Printf("   created %d follows in %v\n", len(followerIDs), time.Since(start))

	fmt.Println("Creating posts...")
	start = time.Now()

	samplePosts := []string{
		"Just had the best coffee!",
		"Working on something exciting...",
		"Beautiful day outside!",
		"Can't believe this happened today",
		"Learning new things every day",
		"Just finished a great book",
		"Thinking about the future...",
		"Great meeting with the team today",
		"Weekend vibes!",
		"Grateful for all the support",
		"New project coming soon!",
		"Just hit a major milestone",
		"Coffee and code, perfect combo",
		"Exploring new ideas today",
		"Thankful for this community",
	}

	var authorIDs []idgen.ID
	var contents []string
	for _, u := range allUsers {
		for j := 0; j < seedPostsPerUser; j++ {
			authorIDs = append(authorIDs, u.ID)
			contents = append(contents, samplePosts[rand.Intn(len(samplePosts))])
		}
	}

	for i := 0; i < len(authorIDs); i += batchSize {
		end := min(i+batchSize, len(authorIDs))
		if err := posts.BulkCreate(ctx, authorIDs[i:end], contents[i:end]); err != nil {
			fmt.Printf("warning: some posts failed: %v\n", err)
		}
		fmt.Printf("   created %d/%d posts\r", end, len(authorIDs))
	}
	fmt.Printf("   created %d posts in %v\n", len(authorIDs), time.Since(start))

	fmt.Println()
	fmt.Println("Seeding complete.")
	fmt.Println()

	userCount, _ := users.Count(ctx)
	postCount, _ := posts.Count(ctx)
	followCount, _ := follows.Count(ctx)
	celebrityCount, _ := users.CountCelebrities(ctx, cfg.Timeline.CelebrityThreshold)

	fmt.Println("Database statistics:")
	fmt.Printf("   total users:   %d\n", userCount)
	fmt.Printf("   total posts:   %d\n", postCount)
	fmt.Printf("   total follows: %d\n", followCount)
	fmt.Printf("   celebrities:   %d (> %d followers)\n", celebrityCount, cfg.Timeline.CelebrityThreshold)
}
