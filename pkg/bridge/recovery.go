// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Recoverer replays messages that were missed while connectivity was down.
// It runs as an independent periodic task: on each tick, if connectivity and
// the source client are healthy, it fetches everything past each route's
// cursor and replays it through the same pipeline as live events, paced to
// avoid destination-side rate limiting.
type Recoverer struct {
	bridge  *Bridge
	health  *HealthMonitor
	store   *Store
	source  SourceClient
	limiter *rate.Limiter
	tick    time.Duration
	log     zerolog.Logger
}

// NewRecoverer creates the recovery loop around an engine.
func NewRecoverer(b *Bridge, health *HealthMonitor, log zerolog.Logger) *Recoverer {
	delay := b.cfg.Global.RecoveryDelayDuration()
	return &Recoverer{
		bridge:  b,
		health:  health,
		store:   b.store,
		source:  b.source,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		tick:    b.cfg.Global.HealthcheckIntervalDuration(),
		log:     log.With().Str("component", "recoverer").Logger(),
	}
}

// Serve implements suture.Service. Errors inside a tick never terminate the
// loop; it always reschedules after the health-check interval.
func (r *Recoverer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runTick(ctx)
		}
	}
}

func (r *Recoverer) runTick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("Recovery tick panicked")
		}
	}()

	if !r.health.Online() || !r.health.SourceHealthy() {
		r.log.Debug().
			Bool("online", r.health.Online()).
			Bool("source_healthy", r.health.SourceHealthy()).
			Msg("Skipping recovery tick, connectivity not restored")
		return
	}

	for _, sub := range r.bridge.Subscriptions() {
		if err := r.replayRoute(ctx, sub); err != nil {
			r.log.Error().Err(err).Str("route", sub.Route.Name).Msg("Failed to replay missed messages")
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// replayRoute fetches everything after the route cursor and replays it in
// ascending source-id order. The cursor only advances after a message is
// confirmed delivered, so an interrupted replay resumes from the last
// confirmed id on the next tick.
func (r *Recoverer) replayRoute(ctx context.Context, sub Subscription) error {
	route := sub.Route

	cursor, err := r.store.Cursor(route.Name)
	if err != nil {
		return err
	}
	if cursor == 0 {
		// Nothing ever mapped; there is no window to recover.
		return nil
	}

	messages, err := r.source.MessagesAfter(ctx, sub.Channel.ID, cursor)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	// The platform may return history out of order; replay is strictly
	// ascending.
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

	r.log.Info().
		Str("route", route.Name).
		Int("count", len(messages)).
		Int64("cursor", cursor).
		Msg("Replaying missed messages")

	for _, msg := range messages {
		if !r.health.DestinationHealthy() {
			// Futile to keep sending; the backlog stays and the next tick
			// retries from the cursor.
			r.log.Warn().
				Str("route", route.Name).
				Int64("message_id", msg.ID).
				Msg("Destination unhealthy mid-replay, deferring remaining backlog")
			return nil
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		evt := &Event{
			Kind:          EventNewMessage,
			ChannelID:     msg.ChannelID,
			MessageID:     msg.ID,
			Text:          msg.Text,
			ReplyToID:     msg.ReplyToID,
			Media:         msg.Media,
			CorrelationID: NewCorrelationID(),
		}
		r.bridge.HandleEvent(ctx, evt)
		metricReplayed.WithLabelValues(route.Name).Inc()
	}
	return nil
}
