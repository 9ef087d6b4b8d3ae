package bot

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildbot/events"
	"guildbot/models"
	"guildbot/service"
)

// fakeSender records outbound Discord sends.
type fakeSender struct {
	dmChannels map[string]string // user ID -> channel ID
	sent       map[string][]string
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		dmChannels: make(map[string]string),
		sent:       make(map[string][]string),
	}
}

func (f *fakeSender) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent[channelID] = append(f.sent[channelID], content)
	return &discordgo.Message{}, nil
}

func (f *fakeSender) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	channelID, ok := f.dmChannels[recipientID]
	if !ok {
		channelID = "dm-" + recipientID
		f.dmChannels[recipientID] = channelID
	}
	return &discordgo.Channel{ID: channelID}, nil
}

// fixedSettingRepo serves a fixed set of settings per guild.
type fixedSettingRepo struct {
	data map[int64]map[string]string
}

func (f *fixedSettingRepo) Upsert(_ context.Context, guildID int64, key, value string) error {
	if f.data[guildID] == nil {
		f.data[guildID] = make(map[string]string)
	}
	f.data[guildID][key] = value
	return nil
}

func (f *fixedSettingRepo) Get(_ context.Context, guildID int64, key string) (*models.GuildSetting, error) {
	value, ok := f.data[guildID][key]
	if !ok {
		return nil, nil
	}
	return &models.GuildSetting{GuildID: guildID, Key: key, Value: value}, nil
}

func (f *fixedSettingRepo) Delete(_ context.Context, guildID int64, key string) (bool, error) {
	delete(f.data[guildID], key)
	return true, nil
}

func (f *fixedSettingRepo) DeleteAllForGuild(_ context.Context, guildID int64) ([]string, error) {
	delete(f.data, guildID)
	return nil, nil
}

func (f *fixedSettingRepo) ListForGuild(_ context.Context, guildID int64) ([]*models.GuildSetting, error) {
	return nil, nil
}

func TestSettingAuditorPostsToConfiguredChannel(t *testing.T) {
	t.Parallel()

	repo := &fixedSettingRepo{data: map[int64]map[string]string{
		1: {AuditChannelSettingKey: "555"},
	}}
	sender := newFakeSender()
	auditor := &settingAuditor{
		sender:   sender,
		settings: service.NewGuildSettingService(repo, events.NewBus()),
	}

	auditor.handleChanged(context.Background(), events.SettingChangedEvent{GuildID: 1, Key: "prefix", Value: "!"})
	auditor.handleDeleted(context.Background(), events.SettingDeletedEvent{GuildID: 1, Key: "lang"})

	require.Len(t, sender.sent["555"], 2)
	assert.Contains(t, sender.sent["555"][0], "prefix")
	assert.Contains(t, sender.sent["555"][0], "updated")
	assert.Contains(t, sender.sent["555"][1], "lang")
	assert.Contains(t, sender.sent["555"][1], "deleted")
}

func TestSettingAuditorSkipsUnconfiguredGuild(t *testing.T) {
	t.Parallel()

	repo := &fixedSettingRepo{data: map[int64]map[string]string{}}
	sender := newFakeSender()
	auditor := &settingAuditor{
		sender:   sender,
		settings: service.NewGuildSettingService(repo, events.NewBus()),
	}

	auditor.handleChanged(context.Background(), events.SettingChangedEvent{GuildID: 7, Key: "prefix", Value: "!"})

	assert.Empty(t, sender.sent)
}

func TestMisfireNotifierDMsEveryAdmin(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	notifier := &misfireNotifier{
		sender:   sender,
		adminIDs: []int64{100001, 100002},
	}

	notifier.handleMisfired(context.Background(), events.TaskMisfiredEvent{
		TaskID:    "hourly-sync",
		Scheduled: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
		Overdue:   10 * time.Minute,
	})

	require.Len(t, sender.sent["dm-100001"], 1)
	require.Len(t, sender.sent["dm-100002"], 1)
	assert.Contains(t, sender.sent["dm-100001"][0], "hourly-sync")
	assert.Contains(t, sender.sent["dm-100001"][0], "skipped")
}