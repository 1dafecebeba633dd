// Copyright 2024-2026 Aiku AI

// Package bridge implements the orchestration engine that replays messages
// from one chat network onto mapped channels of another.
//
// The engine observes new, edited and deleted messages on subscribed source
// channels and mirrors them to the destination, preserving reply threads,
// applying per-route hashtag filters and mention policies, and recovering
// messages missed during connectivity outages.
//
// # Core Types
//
// [Bridge] wires the pipeline together: it resolves routes at startup,
// handles live events, and is re-entered by the recovery loop for replays.
//
// [Registry] resolves configured routes against the live source channel
// list; no resolved route is a fatal startup condition.
//
// [Router] decides, per resolved route, whether an event is forwarded and
// which mentions it carries. Deny tags always override allow tags.
//
// [Deliverer] turns a routed event into destination sends, resolving reply
// references through the store and collecting destination message ids.
//
// [Store] is the durable mapping store: message mappings, per-route cursors
// and missed-forward records. It is the only owner of persisted state, and
// its Record operation is idempotent per (route, source id) so replays never
// duplicate rows.
//
// [Recoverer] is the periodic outage-recovery loop: once connectivity is
// back it fetches everything past each route's cursor and replays it in
// ascending source-id order, rate-limited, through the same pipeline as
// live events.
//
// # Collaborators
//
// Both chat networks sit behind the [SourceClient] and [DestinationClient]
// capability interfaces; the engine never sees either SDK's native event
// shapes. Message-text and media transformation are equally external, via
// [TextTransformer] and [MediaTransformer]. Reference implementations live
// in pkg/transport and pkg/bridge/textfmt.
//
// Delivery is at-least-once: per-route and per-message failures are
// isolated, recorded as missed forwards, and never block sibling routes.
package bridge
