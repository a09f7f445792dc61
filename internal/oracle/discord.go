package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/singleflight"
)

// DiscordOptions configures a DiscordOracle.
type DiscordOptions struct {
	BotToken string
	GuildID  string
	// FallbackIDs answer for any lookup that fails for reasons other than
	// "not a member". Empty means failures answer false.
	FallbackIDs []string
	// Cache is optional. Only definitive answers (200 and 404) are cached.
	Cache Cache
	// RequestTimeout bounds a single guild member lookup.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// DiscordOracle looks up guild members through the Discord REST API.
type DiscordOracle struct {
	session  *discordgo.Session
	guildID  string
	fallback map[string]struct{}
	cache    Cache
	timeout  time.Duration
	group    singleflight.Group
	log      *slog.Logger
}

type lookup struct {
	hasRole    bool
	definitive bool
}

// NewDiscordOracle creates an oracle authenticating as a bot.
func NewDiscordOracle(opts DiscordOptions) (*DiscordOracle, error) {
	if opts.BotToken == "" || opts.GuildID == "" {
		return nil, errors.New("discord oracle requires a bot token and guild id")
	}
	session, err := discordgo.New("Bot " + opts.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	// Rate limits and transient errors fall through to the fallback list
	// instead of blocking the request.
	session.ShouldRetryOnRateLimit = false
	session.MaxRestRetries = 0
	session.UserAgent = "swims-role-oracle (https://swims.cc, 1.0)"
	if opts.HTTPClient != nil {
		session.Client = opts.HTTPClient
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &DiscordOracle{
		session:  session,
		guildID:  opts.GuildID,
		fallback: idSet(opts.FallbackIDs),
		cache:    opts.Cache,
		timeout:  timeout,
		log:      log.With("module", "oracle"),
	}, nil
}

// HasRole reports whether externalID is a guild member holding roleID.
func (o *DiscordOracle) HasRole(ctx context.Context, externalID, roleID string) bool {
	if externalID == "" || roleID == "" {
		return false
	}
	key := o.guildID + ":" + externalID + ":" + roleID
	if o.cache != nil {
		if v, ok := o.cache.Get(ctx, key); ok {
			return v
		}
	}

	// Shared lookups run detached from any single caller so one cancelled
	// request does not fail the others waiting on it.
	ch := o.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
		defer cancel()
		res := o.lookup(lctx, externalID, roleID)
		if res.definitive && o.cache != nil {
			o.cache.Set(lctx, key, res.hasRole)
		}
		return res, nil
	})

	select {
	case r := <-ch:
		return r.Val.(lookup).hasRole
	case <-ctx.Done():
		return false
	}
}

func (o *DiscordOracle) lookup(ctx context.Context, externalID, roleID string) lookup {
	member, err := o.session.GuildMember(o.guildID, externalID, discordgo.WithContext(ctx))
	if err == nil {
		return lookup{hasRole: slices.Contains(member.Roles, roleID), definitive: true}
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return lookup{hasRole: false, definitive: true}
	}

	_, allowed := o.fallback[externalID]
	o.log.WarnContext(ctx, "guild member lookup failed",
		"operation", "guild_member",
		"guild_id", o.guildID,
		"external_id", externalID,
		"fallback", allowed,
		"error", err,
	)
	return lookup{hasRole: allowed}
}

// Close releases the underlying session.
func (o *DiscordOracle) Close() error {
	return o.session.Close()
}
