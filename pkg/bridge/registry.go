// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Subscription is a route bound to a concrete, live source channel.
type Subscription struct {
	Route   *Route
	Channel ChannelInfo
}

// Registry resolves configured routes against the live source channel list.
type Registry struct {
	log                 zerolog.Logger
	logUnhandledDialogs bool

	connectAttempts int
	connectBackoff  time.Duration
}

// NewRegistry creates a registry. When logUnhandledDialogs is set, live
// dialogs without broadcast capability are logged as they are excluded.
func NewRegistry(log zerolog.Logger, logUnhandledDialogs bool) *Registry {
	return &Registry{
		log:                 log.With().Str("component", "registry").Logger(),
		logUnhandledDialogs: logUnhandledDialogs,
		connectAttempts:     30,
		connectBackoff:      time.Second,
	}
}

// Resolve matches every configured route against the live channels the
// source client can see, by exact id or exact display name. Routes that
// match nothing are dropped with a warning. An empty result is fatal:
// Resolve returns ErrNoSubscriptions and the process must stop.
func (r *Registry) Resolve(ctx context.Context, routes []Route, source SourceClient) ([]Subscription, error) {
	if err := r.waitConnected(ctx, source); err != nil {
		return nil, err
	}

	channels, err := source.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source channels: %w", err)
	}

	live := make([]ChannelInfo, 0, len(channels))
	for _, ch := range channels {
		if !ch.Broadcast {
			if r.logUnhandledDialogs {
				r.log.Warn().
					Str("channel_name", ch.Name).
					Int64("channel_id", ch.ID).
					Msg("Excluded source dialog without broadcast capability")
			}
			continue
		}
		live = append(live, ch)
	}

	var subs []Subscription
	for i := range routes {
		route := &routes[i]
		matched := false
		for _, ch := range live {
			if !route.SourceChannel.Matches(ch) {
				continue
			}
			subs = append(subs, Subscription{Route: route, Channel: ch})
			r.log.Info().
				Str("route", route.Name).
				Str("channel_name", ch.Name).
				Int64("channel_id", ch.ID).
				Int64("destination_channel", route.DestinationChannel).
				Msg("Resolved route")
			matched = true
			break
		}
		if !matched {
			r.log.Warn().
				Str("route", route.Name).
				Str("source_channel", route.SourceChannel.String()).
				Msg("Route matches no live source channel, dropping")
		}
	}

	if len(subs) == 0 {
		return nil, ErrNoSubscriptions
	}
	return subs, nil
}

// waitConnected waits for the source client session with a bounded retry
// loop. The attempt budget makes the fatal path deterministic instead of
// blocking resolution forever on a client that never comes up.
func (r *Registry) waitConnected(ctx context.Context, source SourceClient) error {
	for attempt := 0; attempt < r.connectAttempts; attempt++ {
		if source.Connected() {
			return nil
		}
		r.log.Warn().Int("attempt", attempt+1).Msg("Source client not connected, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.connectBackoff):
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrSourceNotConnected, r.connectAttempts)
}

// Matches reports whether the configured reference identifies the given live
// channel, by numeric id or by case-sensitive display name.
func (c ChannelRef) Matches(ch ChannelInfo) bool {
	if c.ID != 0 {
		return c.ID == ch.ID
	}
	return c.Name == ch.Name
}

// SubscriptionChannelIDs returns the distinct source channel ids covered by
// the subscription list, preserving first-seen order.
func SubscriptionChannelIDs(subs []Subscription) []int64 {
	seen := make(map[int64]struct{}, len(subs))
	var ids []int64
	for _, sub := range subs {
		if _, ok := seen[sub.Channel.ID]; ok {
			continue
		}
		seen[sub.Channel.ID] = struct{}{}
		ids = append(ids, sub.Channel.ID)
	}
	return ids
}
