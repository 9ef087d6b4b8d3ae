package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"guildbot/bot"
	"guildbot/bot/common"
	"guildbot/bot/features/general"
	"guildbot/bot/features/reminders"
	"guildbot/bot/features/settings"
	"guildbot/config"
	"guildbot/database"
	"guildbot/events"
	"guildbot/logging"
	"guildbot/permissions"
	"guildbot/repository"
	"guildbot/scheduler"
	"guildbot/service"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultEnvPath, config.DefaultIniPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(cfg.Logging)
	log.Info("Starting guild bot...")

	log.Info("Connecting to database...")
	db, err := database.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established")

	eventBus := events.NewBus()

	settingRepo := repository.NewGuildSettingRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	settingService := service.NewGuildSettingService(settingRepo, eventBus)
	resolver := permissions.NewResolver(cfg.Permissions)
	classifier := common.NewClassifier(cfg.Logging.NotifyUserOnError)

	sched := scheduler.New(taskRepo, eventBus)

	generalFeature := general.New()
	settingsFeature := settings.New(settingService)
	remindersFeature := reminders.New(sched)

	var commands []*bot.Command
	commands = append(commands, generalFeature.Commands()...)
	commands = append(commands, settingsFeature.Commands()...)
	commands = append(commands, remindersFeature.Commands()...)

	log.Info("Initializing Discord bot...")
	discordBot, err := bot.New(bot.Config{
		Token:   cfg.Token,
		GuildID: cfg.GuildID,
	}, resolver, classifier, commands)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize Discord bot: %w", err)
	}
	log.Info("Discord bot initialized")

	// Subscribe before the scheduler starts so restore-time misfires
	// reach the admins.
	discordBot.SubscribeEvents(eventBus, settingService)

	// Callables must be registered before Start so stored tasks load.
	remindersFeature.Bind(discordBot.Session())
	if err := sched.Start(ctx); err != nil {
		discordBot.Close()
		db.Close()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("Bot is running")
	<-ctx.Done()

	log.Info("Shutting down...")

	if err := discordBot.Close(); err != nil {
		log.WithError(err).Error("Error closing Discord connection")
	}

	// Let in-flight tasks finish, but not indefinitely.
	done := make(chan struct{})
	go func() {
		sched.Shutdown(true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("Shutdown timeout exceeded waiting for running tasks")
	}

	log.Info("Closing database connection...")
	db.Close()

	log.Info("Shutdown completed")
	return nil
}
