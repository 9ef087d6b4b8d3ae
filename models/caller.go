package models

// Caller identifies who invoked a command. A caller either has guild context
// (a member with roles and a guild owner to compare against) or is a bare
// user from a DM, in which case role-based checks are not possible.
type Caller struct {
	ID       int64
	Username string

	InGuild      bool
	GuildID      int64
	GuildOwnerID int64
	RoleNames    []string
}

// IsGuildOwner reports whether the caller owns the guild they invoked from.
func (c Caller) IsGuildOwner() bool {
	return c.InGuild && c.ID == c.GuildOwnerID
}
