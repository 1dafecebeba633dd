// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Bridge is the orchestration engine: it resolves routes at startup, handles
// live source events, and owns the shared pipeline the recovery loop re-enters.
type Bridge struct {
	cfg       *Config
	source    SourceClient
	dest      DestinationClient
	store     *Store
	router    *Router
	deliverer *Deliverer
	log       zerolog.Logger

	mu   sync.RWMutex
	subs []Subscription
}

// New creates the engine. The text and media transformers are external
// collaborators; the engine only drives them.
func New(cfg *Config, source SourceClient, dest DestinationClient, store *Store, text TextTransformer, media MediaTransformer, log zerolog.Logger) *Bridge {
	engineLog := log.With().Str("component", "bridge").Logger()
	return &Bridge{
		cfg:       cfg,
		source:    source,
		dest:      dest,
		store:     store,
		router:    NewRouter(dest, cfg.Global.BuiltInRoles, log),
		deliverer: NewDeliverer(store, dest, text, media, log),
		log:       engineLog,
	}
}

// Subscriptions returns the resolved subscription list. It is built once in
// Serve and read-only afterwards.
func (b *Bridge) Subscriptions() []Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs
}

// Serve implements suture.Service: it resolves the registry, registers the
// live event listeners and blocks until the context is canceled. Fatal
// resolution errors are returned to the supervisor.
func (b *Bridge) Serve(ctx context.Context) error {
	registry := NewRegistry(b.log, b.cfg.Global.LogUnhandledSourceDialogs)
	subs, err := registry.Resolve(ctx, b.cfg.Routes, b.source)
	if err != nil {
		err = fmt.Errorf("route resolution failed: %w", err)
		if errors.Is(err, ErrNoSubscriptions) || errors.Is(err, ErrSourceNotConnected) {
			// Fatal startup condition: take the whole tree down instead of
			// letting the supervisor restart a route-less engine forever.
			return errors.Join(err, suture.ErrTerminateSupervisorTree)
		}
		return err
	}

	b.mu.Lock()
	b.subs = subs
	b.mu.Unlock()

	b.source.Subscribe(SubscriptionChannelIDs(subs), b.HandleEvent)
	b.log.Info().Int("subscriptions", len(subs)).Msg("Bridge started")

	<-ctx.Done()
	return ctx.Err()
}

// HandleEvent dispatches a normalized source event to the matching handler.
// It is registered as the live listener and reused verbatim by the recovery
// loop for replayed events.
func (b *Bridge) HandleEvent(ctx context.Context, evt *Event) {
	if evt.CorrelationID == "" {
		evt.CorrelationID = NewCorrelationID()
	}
	switch evt.Kind {
	case EventNewMessage:
		b.handleNewMessage(ctx, evt)
	case EventEditedMessage:
		b.handleEditedMessage(ctx, evt)
	case EventDeletedMessages:
		b.handleDeletedMessages(ctx, evt)
	default:
		b.log.Error().Str("kind", evt.Kind.String()).Msg("Unhandled event kind")
	}
}

func (b *Bridge) handleNewMessage(ctx context.Context, evt *Event) {
	log := b.eventLog(evt)
	log.Debug().Msg("Processing new source message")

	for _, decision := range b.router.Route(evt, b.Subscriptions()) {
		route := decision.Sub.Route
		if !decision.ShouldForward {
			metricDropped.WithLabelValues(route.Name).Inc()
			continue
		}

		destinationIDs, err := b.deliverer.Deliver(ctx, evt, decision)
		if err != nil {
			kind := ClassifyFailure(err)
			metricDeliveryFailures.WithLabelValues(route.Name, string(kind)).Inc()
			log.Error().Err(err).
				Str("route", route.Name).
				Str("failure_kind", string(kind)).
				Msg("Failed to forward message")
			if missErr := b.store.RecordMissed(route.Name, evt.MessageID, route.DestinationChannel, err.Error()); missErr != nil {
				log.Error().Err(missErr).Str("route", route.Name).Msg("Failed to record missed forward")
			}
			continue
		}

		if err := b.store.Record(route.Name, evt.MessageID, destinationIDs); err != nil {
			log.Error().Err(err).Str("route", route.Name).Msg("Failed to record mapping")
			continue
		}
		if err := b.store.AdvanceCursor(route.Name, evt.MessageID); err != nil {
			log.Error().Err(err).Str("route", route.Name).Msg("Failed to advance cursor")
		}
		metricForwarded.WithLabelValues(route.Name).Inc()
		log.Info().
			Str("route", route.Name).
			Ints64("destination_ids", destinationIDs).
			Msg("Forwarded message")
	}
}

// handleEditedMessage propagates a source edit to the first mapped
// destination message. A missing mapping means there is nothing to do.
func (b *Bridge) handleEditedMessage(ctx context.Context, evt *Event) {
	log := b.eventLog(evt)
	log.Debug().Msg("Processing edited source message")

	for _, sub := range matchingSubscriptions(evt.ChannelID, b.Subscriptions()) {
		route := sub.Route
		destinationIDs, err := b.store.Lookup(route.Name, evt.MessageID)
		if errors.Is(err, ErrMappingNotFound) {
			log.Debug().Str("route", route.Name).Msg("No mapping for edited message")
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("route", route.Name).Msg("Mapping lookup failed")
			continue
		}

		channel, err := b.dest.Channel(route.DestinationChannel)
		if err != nil {
			log.Error().Err(err).Str("route", route.Name).Msg("Destination channel unavailable")
			continue
		}
		if err := channel.EditMessage(ctx, destinationIDs[0], evt.Text); err != nil {
			log.Error().Err(err).
				Str("route", route.Name).
				Str("failure_kind", string(ClassifyFailure(err))).
				Int64("destination_id", destinationIDs[0]).
				Msg("Failed to edit destination message")
			continue
		}
		metricEdits.WithLabelValues(route.Name).Inc()
	}
}

// handleDeletedMessages deletes every mapped destination message for each
// deleted source id, then removes the mapping.
func (b *Bridge) handleDeletedMessages(ctx context.Context, evt *Event) {
	log := b.eventLog(evt)
	log.Debug().Ints64("deleted_ids", evt.DeletedIDs).Msg("Processing deleted source messages")

	for _, sub := range matchingSubscriptions(evt.ChannelID, b.Subscriptions()) {
		route := sub.Route
		for _, deletedID := range evt.DeletedIDs {
			destinationIDs, err := b.store.Lookup(route.Name, deletedID)
			if errors.Is(err, ErrMappingNotFound) {
				log.Debug().Str("route", route.Name).Int64("source_id", deletedID).Msg("No mapping for deleted message")
				continue
			}
			if err != nil {
				log.Error().Err(err).Str("route", route.Name).Msg("Mapping lookup failed")
				continue
			}

			channel, err := b.dest.Channel(route.DestinationChannel)
			if err != nil {
				log.Error().Err(err).Str("route", route.Name).Msg("Destination channel unavailable")
				continue
			}

			deleted := true
			for _, destID := range destinationIDs {
				if err := channel.DeleteMessage(ctx, destID); err != nil {
					log.Error().Err(err).
						Str("route", route.Name).
						Str("failure_kind", string(ClassifyFailure(err))).
						Int64("destination_id", destID).
						Msg("Failed to delete destination message")
					deleted = false
					break
				}
			}
			if !deleted {
				continue
			}
			if err := b.store.Delete(route.Name, deletedID); err != nil {
				log.Error().Err(err).Str("route", route.Name).Msg("Failed to remove mapping")
				continue
			}
			metricDeletes.WithLabelValues(route.Name).Inc()
		}
	}
}

func (b *Bridge) eventLog(evt *Event) zerolog.Logger {
	return b.log.With().
		Str("correlation_id", evt.CorrelationID).
		Int64("channel_id", evt.ChannelID).
		Int64("message_id", evt.MessageID).
		Logger()
}
