package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"huddle-chat/config"
	"huddle-chat/internal/auth"
	"huddle-chat/internal/docstore/pgstore"
	"huddle-chat/internal/domain"
	"huddle-chat/internal/domain/conversation"
	"huddle-chat/internal/domain/user"
	"huddle-chat/internal/repository"
	"huddle-chat/internal/services"
	"huddle-chat/pkg/database"
	huddle_errors "huddle-chat/pkg/errors"
	"huddle-chat/pkg/logger"
)

const usage = `
Huddle Chat - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create the documents table
  down        Drop the documents table (DANGEROUS)
  status      Show database connection status and document counts
  seed-dev    Seed development users, a channel and messages, and print tokens
  reset       Drop and recreate the documents table (DANGEROUS)

Flags:
  -token-ttl duration   Lifetime of the tokens printed by seed-dev (default 24h)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev -token-ttl 72h
  go run cmd/migrate/main.go reset
`

var devUsers = []*user.User{
	{ID: "ada", DisplayName: "Ada Lovelace", Email: "ada@huddle.dev"},
	{ID: "grace", DisplayName: "Grace Hopper", Email: "grace@huddle.dev"},
	{ID: "alan", DisplayName: "Alan Turing", Email: "alan@huddle.dev"},
	{ID: "guest", DisplayName: "Visitor", Role: domain.UserRoleGuest},
}

func main() {
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of seeded tokens")
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	command := flag.Arg(0)

	cfg := config.LoadConfig()
	log := logger.New(cfg.LogMode)
	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Errorf("Database connection failed: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	switch command {
	case "up":
		err = pgstore.EnsureSchema(ctx, pool)
	case "down":
		err = pgstore.DropSchema(ctx, pool)
	case "status":
		err = showStatus(ctx, pool, log)
	case "seed-dev":
		err = seedDevelopment(ctx, cfg, pool, *tokenTTL, log)
	case "reset":
		log.Warnf("Dropping all documents")
		if err = pgstore.DropSchema(ctx, pool); err == nil {
			err = pgstore.EnsureSchema(ctx, pool)
		}
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Errorf("%s failed: %v", command, err)
		os.Exit(1)
	}
	log.Infof("%s completed", command)
}

func showStatus(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	log.Infof("Database connection: OK")

	exists, err := database.TableExists(ctx, pool, "documents")
	if err != nil {
		return err
	}
	if !exists {
		log.Warnf("Table documents does not exist, run `migrate up`")
		return nil
	}
	count, err := database.TableCount(ctx, pool, "documents")
	if err != nil {
		return err
	}
	log.Infof("Table %-12s exists (%d rows)", "documents", count)
	return nil
}

// seedDevelopment creates a small workspace through the services so every
// counter and membership document is consistent, then prints a token per
// user for local clients.
func seedDevelopment(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, ttl time.Duration, log *logger.Logger) error {
	store, err := pgstore.New(ctx, pool, pgstore.WithLogger(log))
	if err != nil {
		return err
	}
	defer store.Close()

	users := repository.NewUserRepository(store, log)
	verifier := auth.NewVerifier(cfg.AuthTokenSecret, cfg.AuthIssuer, 0)
	svc := services.New(services.Deps{
		Messages:      repository.NewMessageRepository(store, log),
		Channels:      repository.NewChannelRepository(store, log),
		Users:         users,
		Conversations: repository.NewConversationRepository(store, log),
		Verifier:      verifier,
		Logger:        log,
	})

	as := func(u *user.User) context.Context {
		return services.WithIdentity(ctx, &auth.Identity{UserID: u.ID, DisplayName: u.DisplayName, Email: u.Email, Role: u.Role})
	}

	for _, u := range devUsers {
		if _, err := users.Upsert(ctx, u); err != nil {
			return err
		}
	}

	owner := devUsers[0]
	for _, name := range []string{"general", "random"} {
		if _, err := svc.Channels.Create(as(owner), name, "Seeded for development"); err != nil && !errors.Is(err, huddle_errors.ErrAlreadyExists) {
			return err
		}
		for _, u := range devUsers[1:] {
			if _, err := svc.Channels.Join(as(u), name); err != nil {
				return err
			}
		}
	}

	general := domain.ChannelTarget("general")
	root, err := svc.Chat.Send(as(owner), general, "Welcome to #general, @Grace Hopper!")
	if err != nil {
		return err
	}
	if _, err := svc.Chat.Reply(as(devUsers[1]), general, root.ID, "Glad to be here."); err != nil {
		return err
	}
	if _, err := svc.Chat.React(as(devUsers[2]), general, repository.RootRef(root.ID), "\U0001F44B"); err != nil {
		return err
	}
	if _, err := svc.Chat.Send(as(devUsers[1]), domain.DMTarget(conversation.ID(devUsers[1].ID, devUsers[2].ID)), "Coffee later?"); err != nil {
		return err
	}

	fmt.Println("Seeded tokens:")
	for _, u := range devUsers {
		token, err := verifier.Sign(auth.Identity{UserID: u.ID, DisplayName: u.DisplayName, Email: u.Email, Role: u.Role}, ttl)
		if err != nil {
			return err
		}
		fmt.Printf("  %-6s %s\n", u.ID, token)
	}
	return nil
}
