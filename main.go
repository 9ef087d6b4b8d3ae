package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"guildbot/cmd"
	"guildbot/config"
	"guildbot/database"
)

func main() {
	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error:", err)
		}
		return
	}

	// Normal bot operation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Run the application
	if err := cmd.Run(ctx); err != nil {
		log.Fatal("Application error:", err)
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: guildbot migrate [up|down|status] [args...]")
	}

	cfg, err := config.Load(config.DefaultEnvPath, config.DefaultIniPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp(cfg.Database.DSN)
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(cfg.Database.DSN, steps)
	case "status":
		return database.MigrateStatus(cfg.Database.DSN)
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
