package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kymera-bot/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Tier int

const (
	TierEveryone Tier = iota
	TierModerator
)

// Invocation is one parsed command message.
type Invocation struct {
	Name    string
	Args    []string
	Message *discordgo.Message
}

// Rest joins the arguments from index i onward.
func (inv *Invocation) Rest(i int) string {
	if i >= len(inv.Args) {
		return ""
	}
	return strings.Join(inv.Args[i:], " ")
}

type Handler func(ctx context.Context, inv *Invocation) error

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Tier        Tier
	MinArgs     int
	Handler     Handler
}

// Authorizer reports whether the invoking member holds moderation permission.
type Authorizer func(ctx context.Context, inv *Invocation) (bool, error)

// Replier sends a reply to the invoking message.
type Replier func(inv *Invocation, content string)

type Registry struct {
	prefix    string
	commands  map[string]*Command
	ordered   []*Command
	limiter   *utils.RateLimiter
	authorize Authorizer
	reply     Replier
	logger    *zap.Logger
	now       func() time.Time
}

func NewRegistry(prefix string, limiter *utils.RateLimiter, authorize Authorizer, reply Replier, logger *zap.Logger) *Registry {
	return &Registry{
		prefix:    prefix,
		commands:  make(map[string]*Command),
		limiter:   limiter,
		authorize: authorize,
		reply:     reply,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *Registry) Prefix() string {
	return r.prefix
}

// Register adds a command under its name and aliases. Later registrations
// overwrite earlier ones for the same key.
func (r *Registry) Register(cmd *Command) {
	r.ordered = append(r.ordered, cmd)
	r.commands[strings.ToLower(cmd.Name)] = cmd
	for _, alias := range cmd.Aliases {
		r.commands[strings.ToLower(alias)] = cmd
	}
}

func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// Commands lists registered commands in registration order.
func (r *Registry) Commands() []*Command {
	return append([]*Command(nil), r.ordered...)
}

// Parse splits "<prefix>name arg1 arg2" into a lowercased name and its args.
func Parse(prefix, content string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Dispatch runs the matching command for msg. It reports whether a command
// matched; unknown commands and rate-limited authors are ignored silently.
func (r *Registry) Dispatch(ctx context.Context, msg *discordgo.Message) (bool, error) {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return false, nil
	}
	name, args, ok := Parse(r.prefix, msg.Content)
	if !ok {
		return false, nil
	}
	cmd, ok := r.Lookup(name)
	if !ok {
		return false, nil
	}
	if !r.limiter.Allow(msg.Author.ID, r.now()) {
		r.logger.Debug("command rate limited", zap.String("user_id", msg.Author.ID), zap.String("command", cmd.Name))
		return false, nil
	}

	inv := &Invocation{Name: cmd.Name, Args: args, Message: msg}
	if cmd.Tier == TierModerator {
		allowed, err := r.authorize(ctx, inv)
		if err != nil {
			return true, fmt.Errorf("check permissions: %w", err)
		}
		if !allowed {
			r.reply(inv, "❌ You don't have permission to use moderation commands.")
			return true, nil
		}
	}
	if len(args) < cmd.MinArgs {
		r.reply(inv, "Usage: "+r.prefix+cmd.Usage)
		return true, nil
	}
	return true, cmd.Handler(ctx, inv)
}
