package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"guildbot/events"
	"guildbot/service"
)

// AuditChannelSettingKey is the guild setting that, when set to a
// channel ID, makes the bot post setting changes to that channel.
const AuditChannelSettingKey = "audit_channel_id"

// channelSender is the slice of the Discord session the audit poster
// needs.
type channelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// dmSender is the slice of the Discord session the misfire notifier
// needs.
type dmSender interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// SubscribeEvents attaches the bot's event consumers: an audit-channel
// poster for setting changes and a DM notifier that tells bot admins
// when a scheduled task misfires. Call once, after the session is open.
func (b *Bot) SubscribeEvents(bus *events.Bus, settings *service.GuildSettingService) {
	auditor := &settingAuditor{sender: b.session, settings: settings}
	bus.Subscribe(events.EventTypeSettingChanged, auditor.handleChanged)
	bus.Subscribe(events.EventTypeSettingDeleted, auditor.handleDeleted)

	notifier := &misfireNotifier{sender: b.session, adminIDs: b.resolver.AdminUserIDs()}
	bus.Subscribe(events.EventTypeTaskMisfired, notifier.handleMisfired)
}

// settingAuditor posts setting changes to the guild's configured audit
// channel. Guilds without the setting get no posts.
type settingAuditor struct {
	sender   channelSender
	settings *service.GuildSettingService
}

func (a *settingAuditor) handleChanged(ctx context.Context, e events.Event) {
	ev, ok := e.(events.SettingChangedEvent)
	if !ok {
		return
	}
	a.post(ctx, ev.GuildID, fmt.Sprintf("Setting `%s` was updated.", ev.Key))
}

func (a *settingAuditor) handleDeleted(ctx context.Context, e events.Event) {
	ev, ok := e.(events.SettingDeletedEvent)
	if !ok {
		return
	}
	a.post(ctx, ev.GuildID, fmt.Sprintf("Setting `%s` was deleted.", ev.Key))
}

func (a *settingAuditor) post(ctx context.Context, guildID int64, content string) {
	channelID, found, err := a.settings.Get(ctx, guildID, AuditChannelSettingKey)
	if err != nil {
		log.WithError(err).WithField("guild_id", guildID).Warn("Failed to look up audit channel")
		return
	}
	if !found {
		return
	}
	if _, err := a.sender.ChannelMessageSend(channelID, content); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guild_id":   guildID,
			"channel_id": channelID,
		}).Warn("Failed to post to audit channel")
	}
}

// misfireNotifier DMs the configured admin users when a scheduled task
// misses its fire window; a misfire means the process was down, which
// admins should hear about.
type misfireNotifier struct {
	sender   dmSender
	adminIDs []int64
}

func (n *misfireNotifier) handleMisfired(ctx context.Context, e events.Event) {
	ev, ok := e.(events.TaskMisfiredEvent)
	if !ok {
		return
	}

	content := fmt.Sprintf("Task `%s` missed its fire time %s by %s and was skipped.",
		ev.TaskID, ev.Scheduled.Format("2006-01-02 15:04:05 MST"), ev.Overdue.Round(0))

	for _, adminID := range n.adminIDs {
		channel, err := n.sender.UserChannelCreate(strconv.FormatInt(adminID, 10))
		if err != nil {
			log.WithError(err).WithField("user_id", adminID).Warn("Failed to open DM channel for misfire notice")
			continue
		}
		if _, err := n.sender.ChannelMessageSend(channel.ID, content); err != nil {
			log.WithError(err).WithField("user_id", adminID).Warn("Failed to deliver misfire notice")
		}
	}
}
