package service

import (
	"context"
	"fmt"

	"guildbot/events"
	"guildbot/models"
)

// GuildSettingService exposes the per-guild settings store to command
// handlers and scheduled tasks. Changes are announced on the event bus.
type GuildSettingService struct {
	repo GuildSettingRepository
	bus  *events.Bus
}

// NewGuildSettingService creates a new guild setting service.
func NewGuildSettingService(repo GuildSettingRepository, bus *events.Bus) *GuildSettingService {
	return &GuildSettingService{repo: repo, bus: bus}
}

// Set creates or updates a setting.
func (s *GuildSettingService) Set(ctx context.Context, guildID int64, key, value string) error {
	if key == "" {
		return fmt.Errorf("setting key must not be empty")
	}
	if err := s.repo.Upsert(ctx, guildID, key, value); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}

	s.bus.Emit(ctx, events.SettingChangedEvent{GuildID: guildID, Key: key, Value: value})
	return nil
}

// Get returns the setting value and whether it exists.
func (s *GuildSettingService) Get(ctx context.Context, guildID int64, key string) (string, bool, error) {
	setting, err := s.repo.Get(ctx, guildID, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	if setting == nil {
		return "", false, nil
	}
	return setting.Value, true, nil
}

// Delete removes a setting and reports whether it existed.
func (s *GuildSettingService) Delete(ctx context.Context, guildID int64, key string) (bool, error) {
	deleted, err := s.repo.Delete(ctx, guildID, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete setting: %w", err)
	}
	if deleted {
		s.bus.Emit(ctx, events.SettingDeletedEvent{GuildID: guildID, Key: key})
	}
	return deleted, nil
}

// ClearGuild removes every setting for a guild and returns how many
// were deleted.
func (s *GuildSettingService) ClearGuild(ctx context.Context, guildID int64) (int, error) {
	keys, err := s.repo.DeleteAllForGuild(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear settings: %w", err)
	}
	for _, key := range keys {
		s.bus.Emit(ctx, events.SettingDeletedEvent{GuildID: guildID, Key: key})
	}
	return len(keys), nil
}

// List returns all settings for a guild.
func (s *GuildSettingService) List(ctx context.Context, guildID int64) ([]*models.GuildSetting, error) {
	settings, err := s.repo.ListForGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return settings, nil
}
