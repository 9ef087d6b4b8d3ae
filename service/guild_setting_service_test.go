package service

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildbot/events"
	"guildbot/models"
)

// fakeSettingRepo is an in-memory GuildSettingRepository.
type fakeSettingRepo struct {
	data map[int64]map[string]string
	err  error
}

func newFakeSettingRepo() *fakeSettingRepo {
	return &fakeSettingRepo{data: make(map[int64]map[string]string)}
}

func (f *fakeSettingRepo) Upsert(_ context.Context, guildID int64, key, value string) error {
	if f.err != nil {
		return f.err
	}
	if f.data[guildID] == nil {
		f.data[guildID] = make(map[string]string)
	}
	f.data[guildID][key] = value
	return nil
}

func (f *fakeSettingRepo) Get(_ context.Context, guildID int64, key string) (*models.GuildSetting, error) {
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.data[guildID][key]
	if !ok {
		return nil, nil
	}
	return &models.GuildSetting{GuildID: guildID, Key: key, Value: value}, nil
}

func (f *fakeSettingRepo) Delete(_ context.Context, guildID int64, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.data[guildID][key]; !ok {
		return false, nil
	}
	delete(f.data[guildID], key)
	return true, nil
}

func (f *fakeSettingRepo) DeleteAllForGuild(_ context.Context, guildID int64) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var keys []string
	for key := range f.data[guildID] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	delete(f.data, guildID)
	return keys, nil
}

func (f *fakeSettingRepo) ListForGuild(_ context.Context, guildID int64) ([]*models.GuildSetting, error) {
	if f.err != nil {
		return nil, f.err
	}
	var settings []*models.GuildSetting
	for key, value := range f.data[guildID] {
		settings = append(settings, &models.GuildSetting{GuildID: guildID, Key: key, Value: value})
	}
	return settings, nil
}

func TestGuildSettingService_SetThenGet(t *testing.T) {
	ctx := context.Background()
	svc := NewGuildSettingService(newFakeSettingRepo(), events.NewBus())

	require.NoError(t, svc.Set(ctx, 1, "prefix", "!"))
	require.NoError(t, svc.Set(ctx, 1, "prefix", "$"))

	value, ok, err := svc.Get(ctx, 1, "prefix")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "$", value)
}

func TestGuildSettingService_GetMissing(t *testing.T) {
	ctx := context.Background()
	svc := NewGuildSettingService(newFakeSettingRepo(), events.NewBus())

	_, ok, err := svc.Get(ctx, 1, "lang")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGuildSettingService_RejectsEmptyKey(t *testing.T) {
	svc := NewGuildSettingService(newFakeSettingRepo(), events.NewBus())
	err := svc.Set(context.Background(), 1, "", "value")
	require.Error(t, err)
}

func TestGuildSettingService_DeleteReportsExistence(t *testing.T) {
	ctx := context.Background()
	svc := NewGuildSettingService(newFakeSettingRepo(), events.NewBus())

	require.NoError(t, svc.Set(ctx, 1, "prefix", "!"))

	deleted, err := svc.Delete(ctx, 1, "prefix")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.Delete(ctx, 1, "prefix")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, ok, err := svc.Get(ctx, 1, "prefix")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGuildSettingService_ClearGuild(t *testing.T) {
	ctx := context.Background()
	svc := NewGuildSettingService(newFakeSettingRepo(), events.NewBus())

	require.NoError(t, svc.Set(ctx, 1, "prefix", "!"))
	require.NoError(t, svc.Set(ctx, 1, "lang", "en"))
	require.NoError(t, svc.Set(ctx, 2, "prefix", "$"))

	count, err := svc.ClearGuild(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	settings, err := svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, settings)

	// The other guild is untouched.
	value, ok, err := svc.Get(ctx, 2, "prefix")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "$", value)
}

func TestGuildSettingService_WrapsRepositoryErrors(t *testing.T) {
	repo := newFakeSettingRepo()
	repo.err = errors.New("connection refused")
	svc := NewGuildSettingService(repo, events.NewBus())

	err := svc.Set(context.Background(), 1, "prefix", "!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set setting")
}
