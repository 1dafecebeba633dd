// Copyright 2024-2026 Aiku AI

package bridge

import "context"

// ChannelInfo describes a live channel visible to the source client.
type ChannelInfo struct {
	ID   int64
	Name string
	// Broadcast reports whether the channel has broadcast/supergroup
	// capability. Channels without it are never routed.
	Broadcast bool
}

// SourceMessage is a message fetched from source-channel history during
// recovery.
type SourceMessage struct {
	ID        int64
	ChannelID int64
	Text      string
	ReplyToID int64
	Media     []MediaRef
}

// EventHandler receives normalized source events.
type EventHandler func(ctx context.Context, evt *Event)

// SourceClient is the capability surface the engine needs from the source
// chat network. Session management, authentication and reconnection live
// behind this interface.
type SourceClient interface {
	// Connected reports whether the client session is established.
	Connected() bool
	// Healthy is the health flag polled by the recovery loop.
	Healthy() bool
	// Channels lists the live channels the client can see.
	Channels(ctx context.Context) ([]ChannelInfo, error)
	// Subscribe registers handler for events on the given channels. The
	// handler may be invoked concurrently for distinct messages.
	Subscribe(channelIDs []int64, handler EventHandler)
	// MessagesAfter fetches channel history with message id > afterID,
	// bounded by platform history limits. Order is not guaranteed.
	MessagesAfter(ctx context.Context, channelID, afterID int64) ([]SourceMessage, error)
}

// Role is a destination-server role that can be mentioned.
type Role struct {
	Name    string
	Mention string
}

// PayloadPart is one destination-ready send unit. Text and Media may both be
// set on the same part.
type PayloadPart struct {
	Text  string
	Media *MediaRef
}

// DestinationChannel is one mapped destination channel. Implementations
// translate failures into ErrDestinationNotFound / ErrDestinationForbidden
// where the platform reports them; any other error is a transport failure.
type DestinationChannel interface {
	ID() int64
	// Send posts one payload part, optionally as a reply to replyToID
	// (0 means no reference). Returns the destination message id.
	Send(ctx context.Context, part PayloadPart, replyToID int64) (int64, error)
	EditMessage(ctx context.Context, messageID int64, text string) error
	DeleteMessage(ctx context.Context, messageID int64) error
	// GuildRoles lists the destination server's mentionable roles.
	GuildRoles() []Role
}

// DestinationClient is the capability surface for the destination network.
type DestinationClient interface {
	Healthy() bool
	Channel(id int64) (DestinationChannel, error)
}

// TextTransformer turns a source event into destination-ready text. The
// engine treats its internals (hashtag stripping, rewriting) as opaque.
type TextTransformer interface {
	TransformText(evt *Event, route *Route, mentionEveryone bool, mentionRoles []string) (string, error)
	// Split breaks text into parts that fit the destination length limit.
	Split(text string) []string
}

// MediaTransformer turns a source event's media into destination-ready
// payload parts, handling download/re-encode/upload mechanics.
type MediaTransformer interface {
	TransformMedia(ctx context.Context, evt *Event) ([]PayloadPart, error)
}
