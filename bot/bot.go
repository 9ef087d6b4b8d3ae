package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"guildbot/bot/common"
	"guildbot/models"
	"guildbot/permissions"
)

// Config holds bot configuration
type Config struct {
	Token string
	// GuildID scopes slash command registration to a single guild when
	// set. Empty registers the commands globally.
	GuildID string
}

// Bot manages the Discord session and routes slash commands through the
// permission gate to their handlers.
type Bot struct {
	config     Config
	session    *discordgo.Session
	resolver   *permissions.Resolver
	classifier *common.Classifier
	commands   map[string]*Command
}

// New creates a bot, opens the gateway connection, and registers the
// given commands with Discord.
func New(config Config, resolver *permissions.Resolver, classifier *common.Classifier, commands []*Command) (*Bot, error) {
	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	bot := &Bot{
		config:     config,
		session:    dg,
		resolver:   resolver,
		classifier: classifier,
		commands:   make(map[string]*Command),
	}

	for _, cmd := range commands {
		if cmd.Requires.Kind == RequireFeature && !resolver.KnownFeature(cmd.Requires.Feature) {
			// Fail-closed: the command stays registered but nobody
			// except bot admins can pass its gate.
			log.WithFields(log.Fields{
				"command": cmd.Spec.Name,
				"feature": cmd.Requires.Feature,
			}).Warn("Command requires a feature with no configured grants")
		}
		bot.commands[cmd.Spec.Name] = cmd
	}

	dg.AddHandler(bot.handleCommands)
	dg.AddHandler(bot.handleGuildCreate)
	dg.AddHandler(bot.handleReady)

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	if err := bot.registerCommands(); err != nil {
		dg.Close()
		return nil, fmt.Errorf("error registering commands: %w", err)
	}

	return bot, nil
}

// Close gracefully shuts down the gateway connection.
func (b *Bot) Close() error {
	return b.session.Close()
}

// Session returns the Discord session for components that deliver
// messages outside an interaction.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// registerCommands registers all slash commands with Discord, scoped to
// the configured guild when one is set.
func (b *Bot) registerCommands() error {
	for _, cmd := range b.commands {
		_, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.config.GuildID, cmd.Spec)
		if err != nil {
			return fmt.Errorf("cannot create '%s' command: %w", cmd.Spec.Name, err)
		}
	}
	return nil
}

// handleCommands routes slash commands through the permission gate to
// their handlers and classifies anything that goes wrong.
func (b *Bot) handleCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	name := i.ApplicationCommandData().Name

	cmd, ok := b.commands[name]
	if !ok {
		common.HandleError(s, i, b.classifier, name, common.ErrUnknownCommand)
		return
	}

	caller, err := b.buildCaller(s, i)
	if err != nil {
		common.HandleError(s, i, b.classifier, name, err)
		return
	}

	if err := b.authorize(caller, cmd); err != nil {
		common.HandleError(s, i, b.classifier, name, err)
		return
	}

	log.WithFields(log.Fields{
		"command": name,
		"user_id": caller.ID,
	}).Debug("Dispatching command")

	if err := cmd.Handler(ctx, s, i); err != nil {
		common.HandleError(s, i, b.classifier, name, err)
	}
}

// authorize applies the command's requirement to the caller.
func (b *Bot) authorize(caller models.Caller, cmd *Command) error {
	switch cmd.Requires.Kind {
	case RequireNone:
		return nil
	case RequireAdmin:
		if !b.resolver.IsBotAdmin(caller) {
			return fmt.Errorf("command %s: %w", cmd.Spec.Name, common.ErrPermissionDenied)
		}
		return nil
	case RequireFeature:
		if !b.resolver.HasFeaturePermission(caller, cmd.Requires.Feature) {
			return fmt.Errorf("command %s (feature %s): %w", cmd.Spec.Name, cmd.Requires.Feature, common.ErrPermissionDenied)
		}
		return nil
	default:
		return fmt.Errorf("command %s has an unknown requirement kind %d", cmd.Spec.Name, cmd.Requires.Kind)
	}
}

// buildCaller assembles the permission-check view of whoever invoked
// the interaction, resolving guild ownership and role names from the
// session state.
func (b *Bot) buildCaller(s *discordgo.Session, i *discordgo.InteractionCreate) (models.Caller, error) {
	if i.Member == nil || i.Member.User == nil {
		// DM interaction: no guild context, role checks are off the
		// table.
		if i.User == nil {
			return models.Caller{}, fmt.Errorf("interaction has no user")
		}
		id, err := strconv.ParseInt(i.User.ID, 10, 64)
		if err != nil {
			return models.Caller{}, fmt.Errorf("failed to parse user ID %s: %w", i.User.ID, err)
		}
		return models.Caller{ID: id, Username: i.User.Username}, nil
	}

	id, err := strconv.ParseInt(i.Member.User.ID, 10, 64)
	if err != nil {
		return models.Caller{}, fmt.Errorf("failed to parse user ID %s: %w", i.Member.User.ID, err)
	}
	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		return models.Caller{}, fmt.Errorf("failed to parse guild ID %s: %w", i.GuildID, err)
	}

	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		guild, err = s.Guild(i.GuildID)
		if err != nil {
			return models.Caller{}, fmt.Errorf("failed to fetch guild %s: %w", i.GuildID, err)
		}
	}

	ownerID, err := strconv.ParseInt(guild.OwnerID, 10, 64)
	if err != nil {
		return models.Caller{}, fmt.Errorf("failed to parse guild owner ID %s: %w", guild.OwnerID, err)
	}

	roleNames := make(map[string]string, len(guild.Roles))
	for _, role := range guild.Roles {
		roleNames[role.ID] = role.Name
	}
	names := make([]string, 0, len(i.Member.Roles))
	for _, roleID := range i.Member.Roles {
		if name, ok := roleNames[roleID]; ok {
			names = append(names, name)
		}
	}

	return models.Caller{
		ID:           id,
		Username:     i.Member.User.Username,
		InGuild:      true,
		GuildID:      guildID,
		GuildOwnerID: ownerID,
		RoleNames:    names,
	}, nil
}

// handleGuildCreate logs when the bot joins a guild.
func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log.WithFields(log.Fields{
		"guild_id":     g.ID,
		"guild_name":   g.Name,
		"member_count": g.MemberCount,
	}).Info("Joined guild")
}

// handleReady logs the gateway session details once Discord confirms
// the connection.
func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	log.WithFields(log.Fields{
		"username": r.User.Username,
		"guilds":   len(r.Guilds),
	}).Info("Gateway connection ready")
}
