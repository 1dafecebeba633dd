// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Deliverer turns a routed event into destination sends. It never writes to
// the store; the caller owns persistence of the resulting mapping.
type Deliverer struct {
	store *Store
	dest  DestinationClient
	text  TextTransformer
	media MediaTransformer
	log   zerolog.Logger
}

// NewDeliverer creates a delivery coordinator.
func NewDeliverer(store *Store, dest DestinationClient, text TextTransformer, media MediaTransformer, log zerolog.Logger) *Deliverer {
	return &Deliverer{
		store: store,
		dest:  dest,
		text:  text,
		media: media,
		log:   log.With().Str("component", "deliverer").Logger(),
	}
}

// Deliver sends the event to the decision's destination channel and returns
// the destination message ids in send order. On any destination failure the
// remaining parts are aborted and the first failure is returned, classified
// by the ErrDestination* sentinels.
func (d *Deliverer) Deliver(ctx context.Context, evt *Event, decision Decision) ([]int64, error) {
	route := decision.Sub.Route

	// A reply whose target was never mapped is delivered without a
	// reference; reply resolution never blocks delivery.
	var replyTo int64
	if evt.ReplyToID != 0 {
		mapped, err := d.store.Lookup(route.Name, evt.ReplyToID)
		switch {
		case err == nil && len(mapped) > 0:
			replyTo = mapped[0]
		case errors.Is(err, ErrMappingNotFound):
			d.log.Debug().
				Str("route", route.Name).
				Int64("reply_to", evt.ReplyToID).
				Str("correlation_id", evt.CorrelationID).
				Msg("No mapping for replied-to message, sending without reference")
		case err != nil:
			d.log.Error().Err(err).
				Str("route", route.Name).
				Int64("reply_to", evt.ReplyToID).
				Msg("Reply lookup failed, sending without reference")
		}
	}

	text, err := d.text.TransformText(evt, route, decision.MentionEveryone, decision.MentionRoles)
	if err != nil {
		return nil, fmt.Errorf("text transformation failed: %w", err)
	}

	parts, err := d.buildParts(ctx, evt, text)
	if err != nil {
		return nil, err
	}

	channel, err := d.dest.Channel(route.DestinationChannel)
	if err != nil {
		return nil, fmt.Errorf("destination channel %d: %w", route.DestinationChannel, err)
	}

	var sent []int64
	for _, part := range parts {
		id, err := channel.Send(ctx, part, replyTo)
		if err != nil {
			return sent, fmt.Errorf("send to channel %d: %w", route.DestinationChannel, err)
		}
		sent = append(sent, id)
	}
	return sent, nil
}

// buildParts assembles the ordered payload parts: split text first, media
// attached to the leading part, surplus media as trailing parts.
func (d *Deliverer) buildParts(ctx context.Context, evt *Event, text string) ([]PayloadPart, error) {
	textParts := d.text.Split(text)

	if len(evt.Media) == 0 {
		parts := make([]PayloadPart, 0, len(textParts))
		for _, t := range textParts {
			parts = append(parts, PayloadPart{Text: t})
		}
		return parts, nil
	}

	mediaParts, err := d.media.TransformMedia(ctx, evt)
	if err != nil {
		return nil, fmt.Errorf("media transformation failed: %w", err)
	}

	parts := make([]PayloadPart, 0, len(textParts)+len(mediaParts))
	for _, t := range textParts {
		parts = append(parts, PayloadPart{Text: t})
	}
	// First attachment rides with the leading text part; the rest follow as
	// their own parts.
	for i, mp := range mediaParts {
		if i == 0 && len(parts) > 0 && mp.Text == "" {
			parts[0].Media = mp.Media
			continue
		}
		parts = append(parts, mp)
	}
	return parts, nil
}
