package general

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"guildbot/bot"
	"guildbot/bot/common"
)

// Feature provides the basic commands every install gets: a public
// greeting, a latency check, and two commands that exist to exercise
// the permission gates.
type Feature struct{}

func New() *Feature {
	return &Feature{}
}

// Commands returns the feature's slash command bindings.
func (f *Feature) Commands() []*bot.Command {
	return []*bot.Command{
		{
			Spec: &discordgo.ApplicationCommand{
				Name:        "greet",
				Description: "Say hello",
			},
			Handler: f.handleGreet,
		},
		{
			Spec: &discordgo.ApplicationCommand{
				Name:        "ping",
				Description: "Check that the bot is alive and how fast it responds",
			},
			Handler: f.handlePing,
		},
		{
			Spec: &discordgo.ApplicationCommand{
				Name:        "admin-test",
				Description: "Verify that you are recognized as a bot administrator",
			},
			Requires: bot.AdminOnly(),
			Handler:  f.handleAdminTest,
		},
		{
			Spec: &discordgo.ApplicationCommand{
				Name:        "hr-tool",
				Description: "Show your guild roles as seen by the permission system",
			},
			Requires: bot.Feature("hr_tool"),
			Handler:  f.handleHRTool,
		},
	}
}

func (f *Feature) handleGreet(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return common.RespondPublic(s, i, fmt.Sprintf("Hello, %s!", common.CallerName(i)))
}

func (f *Feature) handlePing(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return common.Respond(s, i, fmt.Sprintf("Pong! Gateway latency: %dms", s.HeartbeatLatency().Milliseconds()))
}

func (f *Feature) handleAdminTest(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return common.Respond(s, i, "You are recognized as a bot administrator.")
}

func (f *Feature) handleHRTool(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if i.Member == nil {
		return common.NewUsageError("this command is only available in a server")
	}

	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		guild, err = s.Guild(i.GuildID)
		if err != nil {
			return fmt.Errorf("failed to fetch guild %s: %w", i.GuildID, err)
		}
	}

	byID := make(map[string]string, len(guild.Roles))
	for _, role := range guild.Roles {
		byID[role.ID] = role.Name
	}
	var names []string
	for _, roleID := range i.Member.Roles {
		if name, ok := byID[roleID]; ok {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return common.Respond(s, i, "You have no roles in this server.")
	}
	return common.Respond(s, i, fmt.Sprintf("Your roles: %s", strings.Join(names, ", ")))
}
