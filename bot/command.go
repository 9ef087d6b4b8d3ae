package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// RequireKind selects which permission check guards a command.
type RequireKind int

const (
	// RequireNone allows any caller.
	RequireNone RequireKind = iota
	// RequireAdmin allows bot administrators only.
	RequireAdmin
	// RequireFeature allows bot administrators plus anyone granted the
	// named feature.
	RequireFeature
)

// Requirement declares a command's permission gate.
type Requirement struct {
	Kind    RequireKind
	Feature string
}

// AdminOnly marks a command as restricted to bot administrators.
func AdminOnly() Requirement {
	return Requirement{Kind: RequireAdmin}
}

// Feature marks a command as gated on a named feature grant.
func Feature(name string) Requirement {
	return Requirement{Kind: RequireFeature, Feature: name}
}

// HandlerFunc processes a slash command interaction. Returned errors
// are classified centrally; handlers never reply with error text
// themselves.
type HandlerFunc func(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error

// Command binds a slash command definition to its permission gate and
// handler.
type Command struct {
	Spec     *discordgo.ApplicationCommand
	Requires Requirement
	Handler  HandlerFunc
}
