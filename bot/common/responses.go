package common

import (
	"runtime/debug"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Respond sends the initial interaction response. Content is only
// visible to the caller.
func Respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// RespondPublic sends the initial interaction response visible to the
// whole channel.
func RespondPublic(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

// notify delivers an ephemeral message to the caller regardless of
// whether the interaction has already been answered. It tries the
// initial response first and falls back to a follow-up. Failures are
// logged and swallowed so a broken reply never cascades into another
// error report.
func notify(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := Respond(s, i, content)
	if err == nil {
		return
	}
	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to deliver error notice to user")
	}
}

// HandleError applies the classifier's disposition for err: logs it as
// directed and notifies the caller when appropriate.
func HandleError(s *discordgo.Session, i *discordgo.InteractionCreate, c *Classifier, commandName string, err error) {
	d := c.Classify(err)
	if d.Silent {
		return
	}

	if d.Log {
		entry := log.WithFields(log.Fields{
			"command": commandName,
			"user_id": CallerID(i),
		})
		if d.IncludeStack {
			entry = entry.WithField("stack", string(debug.Stack()))
		}
		entry.Log(d.LogLevel, d.LogMessage)
	}

	if d.Notify {
		notify(s, i, d.UserMessage)
	}
}

// CallerID returns the invoking user's ID for both guild and DM
// interactions.
func CallerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// CallerName returns the invoking user's username, or an empty string
// when it cannot be determined.
func CallerName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return ""
}
