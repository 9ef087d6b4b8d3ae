package service

import (
	"context"

	"guildbot/models"
)

// GuildSettingRepository is the persistence interface consumed by the
// settings service. Implemented by repository.GuildSettingRepository.
type GuildSettingRepository interface {
	Upsert(ctx context.Context, guildID int64, key, value string) error
	Get(ctx context.Context, guildID int64, key string) (*models.GuildSetting, error)
	Delete(ctx context.Context, guildID int64, key string) (bool, error)
	DeleteAllForGuild(ctx context.Context, guildID int64) ([]string, error)
	ListForGuild(ctx context.Context, guildID int64) ([]*models.GuildSetting, error)
}
