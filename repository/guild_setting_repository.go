package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"guildbot/database"
	"guildbot/models"
)

// GuildSettingRepository persists per-guild key/value settings.
type GuildSettingRepository struct {
	q  Queryable
	db *database.DB
}

// NewGuildSettingRepository creates a new guild setting repository.
func NewGuildSettingRepository(db *database.DB) *GuildSettingRepository {
	return &GuildSettingRepository{q: db.Pool, db: db}
}

// NewGuildSettingRepositoryWithTx creates a repository bound to a transaction.
func NewGuildSettingRepositoryWithTx(tx Queryable) *GuildSettingRepository {
	return &GuildSettingRepository{q: tx}
}

// Upsert creates the setting or overwrites its value if the (guild, key)
// pair already exists.
func (r *GuildSettingRepository) Upsert(ctx context.Context, guildID int64, key, value string) error {
	query := `
		INSERT INTO guild_settings (guild_id, setting_key, setting_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, setting_key)
		DO UPDATE SET setting_value = EXCLUDED.setting_value
	`

	if _, err := r.q.Exec(ctx, query, guildID, key, value); err != nil {
		return fmt.Errorf("failed to upsert setting %q for guild %d: %w", key, guildID, err)
	}
	return nil
}

// Get returns the setting, or nil when the key is absent.
func (r *GuildSettingRepository) Get(ctx context.Context, guildID int64, key string) (*models.GuildSetting, error) {
	query := `
		SELECT id, guild_id, setting_key, setting_value
		FROM guild_settings
		WHERE guild_id = $1 AND setting_key = $2
	`

	var setting models.GuildSetting
	err := r.q.QueryRow(ctx, query, guildID, key).Scan(
		&setting.ID,
		&setting.GuildID,
		&setting.Key,
		&setting.Value,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %q for guild %d: %w", key, guildID, err)
	}

	return &setting, nil
}

// Delete removes the setting and reports whether a row existed.
func (r *GuildSettingRepository) Delete(ctx context.Context, guildID int64, key string) (bool, error) {
	query := `DELETE FROM guild_settings WHERE guild_id = $1 AND setting_key = $2`

	tag, err := r.q.Exec(ctx, query, guildID, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete setting %q for guild %d: %w", key, guildID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAllForGuild removes every setting for a guild and returns the
// deleted keys in order. The read and the delete run in one transaction
// so the returned keys are exactly what was removed.
func (r *GuildSettingRepository) DeleteAllForGuild(ctx context.Context, guildID int64) ([]string, error) {
	if r.db == nil {
		return deleteAllForGuild(ctx, r.q, guildID)
	}

	var keys []string
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		keys, err = deleteAllForGuild(ctx, tx, guildID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clear settings for guild %d: %w", guildID, err)
	}
	return keys, nil
}

func deleteAllForGuild(ctx context.Context, q Queryable, guildID int64) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT setting_key FROM guild_settings
		WHERE guild_id = $1
		ORDER BY setting_key
		FOR UPDATE
	`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return nil, nil
	}
	if _, err := q.Exec(ctx, `DELETE FROM guild_settings WHERE guild_id = $1`, guildID); err != nil {
		return nil, err
	}
	return keys, nil
}

// ListForGuild returns all settings for a guild ordered by key.
func (r *GuildSettingRepository) ListForGuild(ctx context.Context, guildID int64) ([]*models.GuildSetting, error) {
	query := `
		SELECT id, guild_id, setting_key, setting_value
		FROM guild_settings
		WHERE guild_id = $1
		ORDER BY setting_key
	`

	rows, err := r.q.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings for guild %d: %w", guildID, err)
	}
	defer rows.Close()

	var settings []*models.GuildSetting
	for rows.Next() {
		var setting models.GuildSetting
		if err := rows.Scan(&setting.ID, &setting.GuildID, &setting.Key, &setting.Value); err != nil {
			return nil, fmt.Errorf("failed to scan setting for guild %d: %w", guildID, err)
		}
		settings = append(settings, &setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settings for guild %d: %w", guildID, err)
	}

	return settings, nil
}
