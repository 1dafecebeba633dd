// Copyright 2024-2026 Aiku AI

package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aiku/chanbridge/pkg/bridge"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsReadLimit  = 1 << 20
)

// Source implements bridge.SourceClient against a gateway: REST for channel
// listing and history, a WebSocket stream for live events.
type Source struct {
	rest *restClient
	cfg  Config
	log  zerolog.Logger

	connected atomic.Bool
	healthy   atomic.Bool

	mu       sync.RWMutex
	handler  bridge.EventHandler
	channels map[int64]struct{}
}

var _ bridge.SourceClient = (*Source)(nil)

// NewSource creates a source gateway client.
func NewSource(cfg Config, log zerolog.Logger) *Source {
	return &Source{
		rest: newRESTClient(cfg),
		cfg:  cfg,
		log:  log.With().Str("component", "source_transport").Logger(),
	}
}

// Connect dials the event stream and starts the read pump. The pump runs
// until ctx is canceled, reconnecting with a flat backoff on stream errors.
func (s *Source) Connect(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect source event stream: %w", err)
	}
	go s.run(ctx, conn)
	return nil
}

func (s *Source) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{}
	if s.cfg.Token != "" {
		header["Authorization"] = []string{"Bearer " + s.cfg.Token}
	}
	conn, resp, err := dialer.DialContext(ctx, s.cfg.EventsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	s.connected.Store(true)
	s.healthy.Store(true)
	return conn, nil
}

func (s *Source) run(ctx context.Context, conn *websocket.Conn) {
	for {
		s.readPump(ctx, conn)
		s.connected.Store(false)
		s.healthy.Store(false)
		if ctx.Err() != nil {
			return
		}

		s.log.Warn().Msg("Source event stream lost, reconnecting")
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			var err error
			conn, err = s.dial(ctx)
			if err == nil {
				break
			}
			s.log.Error().Err(err).Msg("Source reconnect failed")
		}
	}
}

func (s *Source) readPump(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		s.healthy.Store(true)
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	pingTicker := time.NewTicker(wsPingPeriod)
	defer pingTicker.Stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					s.healthy.Store(false)
					return
				}
			}
		}
	}()

	for {
		var wire wireEvent
		if err := conn.ReadJSON(&wire); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Error().Err(err).Msg("Source event stream read error")
			}
			return
		}
		evt, err := wire.normalize()
		if err != nil {
			s.log.Error().Err(err).Str("type", wire.Type).Msg("Dropping malformed source event")
			continue
		}
		s.dispatch(ctx, evt)
	}
}

// wireEvent is the gateway's event shape, normalized into bridge.Event at
// this boundary so the engine never depends on the wire format.
type wireEvent struct {
	Type       string      `json:"type"`
	ChannelID  int64       `json:"channel_id"`
	MessageID  int64       `json:"message_id"`
	Text       string      `json:"text"`
	ReplyToID  int64       `json:"reply_to_id"`
	DeletedIDs []int64     `json:"deleted_ids"`
	Media      []wireMedia `json:"media"`
}

func (w *wireEvent) normalize() (*bridge.Event, error) {
	evt := &bridge.Event{
		ChannelID:     w.ChannelID,
		MessageID:     w.MessageID,
		Text:          w.Text,
		ReplyToID:     w.ReplyToID,
		Media:         toMediaRefs(w.Media),
		CorrelationID: bridge.NewCorrelationID(),
	}
	switch w.Type {
	case "new_message":
		evt.Kind = bridge.EventNewMessage
	case "edited_message":
		evt.Kind = bridge.EventEditedMessage
	case "deleted_messages":
		evt.Kind = bridge.EventDeletedMessages
		evt.DeletedIDs = w.DeletedIDs
	default:
		return nil, fmt.Errorf("unknown event type %q", w.Type)
	}
	return evt, nil
}

func (s *Source) dispatch(ctx context.Context, evt *bridge.Event) {
	s.mu.RLock()
	handler := s.handler
	_, subscribed := s.channels[evt.ChannelID]
	s.mu.RUnlock()

	if handler == nil || !subscribed {
		return
	}
	// Handlers for distinct messages may run concurrently, mirroring the
	// scheduling behavior of native network SDKs.
	go handler(ctx, evt)
}

// Connected implements bridge.SourceClient.
func (s *Source) Connected() bool { return s.connected.Load() }

// Healthy implements bridge.SourceClient.
func (s *Source) Healthy() bool { return s.healthy.Load() }

// Subscribe implements bridge.SourceClient.
func (s *Source) Subscribe(channelIDs []int64, handler bridge.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	s.channels = make(map[int64]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		s.channels[id] = struct{}{}
	}
}

// Channels implements bridge.SourceClient.
func (s *Source) Channels(ctx context.Context) ([]bridge.ChannelInfo, error) {
	var wire []struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Broadcast bool   `json:"broadcast"`
	}
	if err := s.rest.doJSON(ctx, "GET", "/v1/channels", nil, &wire); err != nil {
		return nil, err
	}
	channels := make([]bridge.ChannelInfo, 0, len(wire))
	for _, ch := range wire {
		channels = append(channels, bridge.ChannelInfo{ID: ch.ID, Name: ch.Name, Broadcast: ch.Broadcast})
	}
	return channels, nil
}

// MessagesAfter implements bridge.SourceClient.
func (s *Source) MessagesAfter(ctx context.Context, channelID, afterID int64) ([]bridge.SourceMessage, error) {
	var wire []struct {
		ID        int64       `json:"id"`
		Text      string      `json:"text"`
		ReplyToID int64       `json:"reply_to_id"`
		Media     []wireMedia `json:"media"`
	}
	path := fmt.Sprintf("/v1/channels/%d/messages?after=%d", channelID, afterID)
	if err := s.rest.doJSON(ctx, "GET", path, nil, &wire); err != nil {
		return nil, err
	}
	messages := make([]bridge.SourceMessage, 0, len(wire))
	for _, m := range wire {
		messages = append(messages, bridge.SourceMessage{
			ID:        m.ID,
			ChannelID: channelID,
			Text:      m.Text,
			ReplyToID: m.ReplyToID,
			Media:     toMediaRefs(m.Media),
		})
	}
	return messages, nil
}
