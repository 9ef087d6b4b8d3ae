// Package permissions decides whether a caller may invoke a guarded action,
// based on the static role/ID configuration loaded at startup.
package permissions

import (
	"sort"

	"guildbot/config"
	"guildbot/models"
)

// Resolver answers authorization questions. It is built once from the
// permission config and is safe for concurrent use; a negative answer is a
// plain false, never an error — converting a denial into a control-flow
// signal is the dispatcher's job.
type Resolver struct {
	adminRoleNames map[string]struct{}
	adminUserIDs   map[int64]struct{}
	grants         map[string]grant
}

type grant struct {
	roleNames map[string]struct{}
	userIDs   map[int64]struct{}
}

// NewResolver builds a resolver from the loaded permission config.
func NewResolver(pc config.PermissionConfig) *Resolver {
	r := &Resolver{
		adminRoleNames: toStringSet(pc.AdminRoleNames),
		adminUserIDs:   toIDSet(pc.AdminUserIDs),
		grants:         make(map[string]grant, len(pc.Grants)),
	}
	for name, g := range pc.Grants {
		r.grants[name] = grant{
			roleNames: toStringSet(g.AllowedRoleNames),
			userIDs:   toIDSet(g.AllowedUserIDs),
		}
	}
	return r
}

// AdminUserIDs returns the configured admin user IDs in ascending order.
func (r *Resolver) AdminUserIDs() []int64 {
	ids := make([]int64, 0, len(r.adminUserIDs))
	for id := range r.adminUserIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsBotAdmin reports whether the caller is a bot administrator: an admin
// user ID, the owner of the guild they invoked from, or a holder of an
// admin role. DM callers can only qualify by user ID.
func (r *Resolver) IsBotAdmin(caller models.Caller) bool {
	if _, ok := r.adminUserIDs[caller.ID]; ok {
		return true
	}
	if !caller.InGuild {
		return false
	}
	if caller.IsGuildOwner() {
		return true
	}
	for _, role := range caller.RoleNames {
		if _, ok := r.adminRoleNames[role]; ok {
			return true
		}
	}
	return false
}

// HasFeaturePermission reports whether the caller may use the named
// feature. Admins bypass feature checks. A feature with no configured
// grant is denied to everyone else (fail closed).
func (r *Resolver) HasFeaturePermission(caller models.Caller, feature string) bool {
	if r.IsBotAdmin(caller) {
		return true
	}

	g, ok := r.grants[feature]
	if !ok {
		return false
	}

	if _, ok := g.userIDs[caller.ID]; ok {
		return true
	}
	if caller.InGuild {
		for _, role := range caller.RoleNames {
			if _, ok := g.roleNames[role]; ok {
				return true
			}
		}
	}
	return false
}

// KnownFeature reports whether a grant section exists for the feature.
// Feature registration uses this to surface unknown feature names at
// startup instead of silently denying at runtime.
func (r *Resolver) KnownFeature(feature string) bool {
	_, ok := r.grants[feature]
	return ok
}

func toStringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func toIDSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
