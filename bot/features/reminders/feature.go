package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"guildbot/bot"
	"guildbot/bot/common"
	"guildbot/models"
	"guildbot/scheduler"
)

// DeliverCallable is the registered name of the task that posts a due
// reminder. Stored tasks reference it by this name, so renaming it
// orphans every reminder already in the store.
const DeliverCallable = "reminder.deliver"

const maxReminderDelay = 365 * 24 * time.Hour

// Feature lets users schedule one-shot reminders backed by the durable
// task store, so pending reminders survive restarts.
type Feature struct {
	sched *scheduler.Scheduler
}

func New(sched *scheduler.Scheduler) *Feature {
	return &Feature{sched: sched}
}

// Bind registers the delivery callable against the given session. Must
// be called before the scheduler starts so stored reminders load.
func (f *Feature) Bind(session *discordgo.Session) {
	f.sched.Register(DeliverCallable, func(ctx context.Context, tc *scheduler.TaskContext) error {
		channelID := tc.Args["channel_id"]
		userID := tc.Args["user_id"]
		message := tc.Args["message"]

		content := fmt.Sprintf("<@%s> Reminder: %s", userID, message)
		if _, err := session.ChannelMessageSend(channelID, content); err != nil {
			return fmt.Errorf("failed to deliver reminder to channel %s: %w", channelID, err)
		}
		return nil
	})
}

// Commands returns the feature's slash command bindings.
func (f *Feature) Commands() []*bot.Command {
	return []*bot.Command{
		{
			Spec: &discordgo.ApplicationCommand{
				Name:        "remind",
				Description: "Schedule a reminder in this channel",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "in",
						Description: "How far from now, e.g. 30s, 10m, 2h",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "message",
						Description: "What to be reminded of",
						Required:    true,
					},
				},
			},
			Handler: f.handleRemind,
		},
	}
}

func (f *Feature) handleRemind(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	opts := make(map[string]string)
	for _, opt := range i.ApplicationCommandData().Options {
		opts[opt.Name] = opt.StringValue()
	}

	delay, err := time.ParseDuration(opts["in"])
	if err != nil {
		return common.NewUsageError("could not parse %q as a duration; use forms like 30s, 10m, or 2h", opts["in"])
	}
	if delay <= 0 {
		return common.NewUsageError("the delay must be positive, got %q", opts["in"])
	}
	if delay > maxReminderDelay {
		return common.NewUsageError("the delay must be within a year")
	}
	message := opts["message"]
	if message == "" {
		return common.NewUsageError("the reminder message must not be empty")
	}

	runAt := time.Now().Add(delay)
	task := &models.ScheduledTask{
		ID:       "reminder-" + uuid.NewString(),
		Trigger:  models.DateTrigger(runAt),
		Callable: DeliverCallable,
		Args: map[string]string{
			"channel_id": i.ChannelID,
			"user_id":    common.CallerID(i),
			"message":    message,
		},
	}
	if err := f.sched.AddTask(ctx, task); err != nil {
		return fmt.Errorf("failed to schedule reminder: %w", err)
	}

	return common.Respond(s, i, fmt.Sprintf("Reminder set for <t:%d:f>.", runAt.Unix()))
}
