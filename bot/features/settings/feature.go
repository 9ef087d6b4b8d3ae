package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"guildbot/bot"
	"guildbot/bot/common"
	"guildbot/service"
)

const (
	maxKeyLength   = 100
	maxValueLength = 500
)

// Feature exposes the per-guild key/value settings store to bot
// administrators.
type Feature struct {
	settings *service.GuildSettingService
}

func New(settings *service.GuildSettingService) *Feature {
	return &Feature{settings: settings}
}

// Commands returns the feature's slash command bindings.
func (f *Feature) Commands() []*bot.Command {
	return []*bot.Command{
		{
			Spec: &discordgo.ApplicationCommand{
				Name:        "setting",
				Description: "Manage this server's bot settings (admin only)",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "set",
						Description: "Create or overwrite a setting",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "key",
								Description: "Setting name",
								Required:    true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "value",
								Description: "Setting value",
								Required:    true,
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "get",
						Description: "Show a setting's value",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "key",
								Description: "Setting name",
								Required:    true,
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "delete",
						Description: "Remove a setting",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "key",
								Description: "Setting name",
								Required:    true,
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "list",
						Description: "List all settings for this server",
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "clear",
						Description: "Remove every setting for this server",
					},
				},
			},
			Requires: bot.AdminOnly(),
			Handler:  f.handleSetting,
		},
	}
}

func (f *Feature) handleSetting(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if i.GuildID == "" {
		return common.NewUsageError("settings can only be managed from within a server")
	}
	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		return fmt.Errorf("failed to parse guild ID %s: %w", i.GuildID, err)
	}

	sub := i.ApplicationCommandData().Options[0]
	opts := make(map[string]string, len(sub.Options))
	for _, opt := range sub.Options {
		opts[opt.Name] = opt.StringValue()
	}

	switch sub.Name {
	case "set":
		return f.handleSet(ctx, s, i, guildID, opts["key"], opts["value"])
	case "get":
		return f.handleGet(ctx, s, i, guildID, opts["key"])
	case "delete":
		return f.handleDelete(ctx, s, i, guildID, opts["key"])
	case "list":
		return f.handleList(ctx, s, i, guildID)
	case "clear":
		return f.handleClear(ctx, s, i, guildID)
	default:
		return fmt.Errorf("unknown setting subcommand %q", sub.Name)
	}
}

func (f *Feature) handleSet(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if len(value) > maxValueLength {
		return common.NewUsageError("value must be at most %d characters, got %d", maxValueLength, len(value))
	}

	if err := f.settings.Set(ctx, guildID, key, value); err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return common.Respond(s, i, fmt.Sprintf("Setting `%s` saved.", key))
}

func (f *Feature) handleGet(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	value, found, err := f.settings.Get(ctx, guildID, key)
	if err != nil {
		return fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if !found {
		return common.Respond(s, i, fmt.Sprintf("Setting `%s` is not set.", key))
	}
	return common.Respond(s, i, fmt.Sprintf("`%s` = `%s`", key, value))
}

func (f *Feature) handleDelete(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	found, err := f.settings.Delete(ctx, guildID, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	if !found {
		return common.Respond(s, i, fmt.Sprintf("Setting `%s` was not set.", key))
	}
	return common.Respond(s, i, fmt.Sprintf("Setting `%s` deleted.", key))
}

func (f *Feature) handleList(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64) error {
	settings, err := f.settings.List(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to list settings: %w", err)
	}
	if len(settings) == 0 {
		return common.Respond(s, i, "No settings configured for this server.")
	}

	var sb strings.Builder
	sb.WriteString("Settings for this server:\n")
	for _, setting := range settings {
		fmt.Fprintf(&sb, "• `%s` = `%s`\n", setting.Key, setting.Value)
	}
	return common.Respond(s, i, sb.String())
}

func (f *Feature) handleClear(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, guildID int64) error {
	count, err := f.settings.ClearGuild(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to clear settings: %w", err)
	}
	if count == 0 {
		return common.Respond(s, i, "No settings to clear.")
	}
	return common.Respond(s, i, fmt.Sprintf("Cleared %d settings.", count))
}

func validateKey(key string) error {
	if key == "" {
		return common.NewUsageError("key must not be empty")
	}
	if len(key) > maxKeyLength {
		return common.NewUsageError("key must be at most %d characters, got %d", maxKeyLength, len(key))
	}
	return nil
}
