package models

// GuildSetting is one durable key/value pair scoped to a guild.
// The (GuildID, Key) pair is unique.
type GuildSetting struct {
	ID      int64  `db:"id"`
	GuildID int64  `db:"guild_id"`
	Key     string `db:"setting_key"`
	Value   string `db:"setting_value"`
}
