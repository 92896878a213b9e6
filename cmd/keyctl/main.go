package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/strayline/llm-gateway/internal/gateway/auth"
	"github.com/strayline/llm-gateway/internal/shared/database"
	"github.com/strayline/llm-gateway/internal/shared/models"
)

// keyctl provisions gateway API keys from the command line, for operators
// who have database access but no running gateway or admin key.

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Same .env convention as the gateway itself.
	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: keyctl <command> [flags]

commands:
  create    mint an API key for a team
  list      list provisioned keys`)
}

func openStore() (database.Store, error) {
	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = "postgres"
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return database.Open(driver, dsn)
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	teamID := fs.String("team-id", "", "team identifier (required)")
	teamName := fs.String("team-name", "", "display name (defaults to team id)")
	rateLimit := fs.Int("rate-limit", 60, "requests per minute")
	expiresDays := fs.Int("expires-days", 0, "days until the key expires (0 = never)")
	fs.Parse(args)

	if *teamID == "" {
		return fmt.Errorf("-team-id is required")
	}
	if *rateLimit <= 0 {
		return fmt.Errorf("-rate-limit must be positive")
	}
	if *expiresDays < 0 {
		return fmt.Errorf("-expires-days must not be negative")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rawKey, err := auth.GenerateKey()
	if err != nil {
		return err
	}

	name := *teamName
	if name == "" {
		name = *teamID
	}

	key := &models.APIKey{
		KeyHash:            auth.HashKey(rawKey),
		KeyPrefix:          auth.DisplayPrefix(rawKey),
		TeamID:             *teamID,
		TeamName:           name,
		RateLimitPerMinute: *rateLimit,
		IsActive:           true,
		CreatedAt:          time.Now().UTC(),
	}
	if *expiresDays > 0 {
		expiresAt := key.CreatedAt.AddDate(0, 0, *expiresDays)
		key.ExpiresAt = &expiresAt
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.CreateAPIKey(ctx, key); err != nil {
		return err
	}

	fmt.Printf("api key:    %s\n", rawKey)
	fmt.Printf("team:       %s (%s)\n", key.TeamName, key.TeamID)
	fmt.Printf("rate limit: %d req/min\n", key.RateLimitPerMinute)
	if key.ExpiresAt != nil {
		fmt.Printf("expires:    %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("Store this key securely - it cannot be retrieved again.")
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	keys, err := store.ListAPIKeys(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PREFIX\tTEAM\tRPM\tACTIVE\tEXPIRES\tCREATED")
	for _, k := range keys {
		expires := "-"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s...\t%s\t%d\t%t\t%s\t%s\n",
			k.KeyPrefix, k.TeamID, k.RateLimitPerMinute, k.IsActive, expires, k.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}
