// Copyright 2024-2026 Aiku AI

package bridge

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Decision is the routing outcome for one subscription. Decisions with
// ShouldForward=false never reach the delivery coordinator.
type Decision struct {
	Sub             Subscription
	ShouldForward   bool
	MentionEveryone bool
	MentionRoles    []string
}

// Router evaluates inbound events against the resolved subscriptions.
type Router struct {
	dest         DestinationClient
	builtInRoles map[string]struct{}
	log          zerolog.Logger
}

// NewRouter creates a router. builtInRoles are destination-platform mention
// names (e.g. "everyone") resolved without a guild role lookup.
func NewRouter(dest DestinationClient, builtInRoles []string, log zerolog.Logger) *Router {
	builtin := make(map[string]struct{}, len(builtInRoles))
	for _, name := range builtInRoles {
		builtin[strings.ToLower(name)] = struct{}{}
	}
	return &Router{
		dest:         dest,
		builtInRoles: builtin,
		log:          log.With().Str("component", "router").Logger(),
	}
}

// Route returns one decision per subscription whose source channel matches
// the event. A channel with no matching subscription yields an empty list
// and an error log; the message is dropped, not fatal.
func (r *Router) Route(evt *Event, subs []Subscription) []Decision {
	matching := matchingSubscriptions(evt.ChannelID, subs)
	if len(matching) == 0 {
		r.log.Error().
			Int64("channel_id", evt.ChannelID).
			Str("correlation_id", evt.CorrelationID).
			Msg("No route for source channel, dropping event")
		return nil
	}

	// Hashtags are extracted once per event and shared by the allow and
	// deny evaluations.
	hashtags := ExtractHashtags(evt)

	decisions := make([]Decision, 0, len(matching))
	for _, sub := range matching {
		decisions = append(decisions, r.decide(evt, sub, hashtags))
	}
	return decisions
}

func (r *Router) decide(evt *Event, sub Subscription, hashtags map[string]struct{}) Decision {
	route := sub.Route
	shouldForward := route.ForwardEverything
	mentionEveryone := route.MentionEveryone

	if !shouldForward || route.HasMentionOverride() {
		matched := matchTags(route.ForwardTags, hashtags)
		if len(matched) > 0 {
			shouldForward = true
			mentionEveryone = false
			for _, tag := range matched {
				if tag.OverrideMentionEveryone {
					mentionEveryone = true
					break
				}
			}
		}
	}

	// Deny always wins, regardless of how the forward decision was reached.
	if len(route.ExcludedTags) > 0 && len(matchTags(route.ExcludedTags, hashtags)) > 0 {
		shouldForward = false
	}

	decision := Decision{
		Sub:             sub,
		ShouldForward:   shouldForward,
		MentionEveryone: mentionEveryone,
	}
	if shouldForward && route.HasMentionOverride() {
		decision.MentionRoles = r.mentionRoles(route, hashtags, evt)
	}
	return decision
}

// mentionRoles resolves the hashtag mention overrides to mention tokens.
// Built-in role names resolve directly; everything else is looked up by
// exact name in the destination guild's role list, and unresolved names are
// skipped silently.
func (r *Router) mentionRoles(route *Route, hashtags map[string]struct{}, evt *Event) []string {
	var guildRoles []Role
	guildLoaded := false

	mentions := make(map[string]struct{})
	for tag := range hashtags {
		roleNames, ok := route.MentionOverride[tag]
		if !ok {
			continue
		}
		for _, name := range roleNames {
			if _, builtin := r.builtInRoles[strings.ToLower(name)]; builtin {
				mentions["@"+name] = struct{}{}
				continue
			}
			if !guildLoaded {
				guildLoaded = true
				ch, err := r.dest.Channel(route.DestinationChannel)
				if err != nil {
					r.log.Error().Err(err).
						Str("route", route.Name).
						Str("correlation_id", evt.CorrelationID).
						Int64("destination_channel", route.DestinationChannel).
						Msg("Failed to load destination roles")
					continue
				}
				guildRoles = ch.GuildRoles()
			}
			for _, role := range guildRoles {
				if role.Name == name {
					mentions[role.Mention] = struct{}{}
					break
				}
			}
		}
	}

	if len(mentions) == 0 {
		return nil
	}
	out := make([]string, 0, len(mentions))
	for m := range mentions {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func matchingSubscriptions(channelID int64, subs []Subscription) []Subscription {
	var matching []Subscription
	for _, sub := range subs {
		if sub.Channel.ID == channelID {
			matching = append(matching, sub)
		}
	}
	return matching
}

// matchTags returns the rules whose tag name appears in the extracted
// hashtag set, case-insensitively.
func matchTags(rules []TagRule, hashtags map[string]struct{}) []TagRule {
	var matched []TagRule
	for _, rule := range rules {
		if _, ok := hashtags[strings.ToLower(rule.Name)]; ok {
			matched = append(matched, rule)
		}
	}
	return matched
}
