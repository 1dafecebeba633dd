// Copyright 2024-2026 Aiku AI

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aiku/chanbridge/pkg/bridge"
)

func TestWireEventNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		wire    wireEvent
		want    bridge.EventKind
		wantErr bool
	}{
		{
			name: "new message",
			wire: wireEvent{Type: "new_message", ChannelID: 1, MessageID: 2, Text: "hi"},
			want: bridge.EventNewMessage,
		},
		{
			name: "edited message",
			wire: wireEvent{Type: "edited_message", ChannelID: 1, MessageID: 2, Text: "fixed"},
			want: bridge.EventEditedMessage,
		},
		{
			name: "deleted messages",
			wire: wireEvent{Type: "deleted_messages", ChannelID: 1, DeletedIDs: []int64{2, 3}},
			want: bridge.EventDeletedMessages,
		},
		{
			name:    "unknown type",
			wire:    wireEvent{Type: "typing"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evt, err := tt.wire.normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatal("normalize should reject unknown event types")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if evt.Kind != tt.want {
				t.Errorf("Kind: got %v, want %v", evt.Kind, tt.want)
			}
			if evt.CorrelationID == "" {
				t.Error("normalize should assign a correlation id")
			}
			if tt.want == bridge.EventDeletedMessages && !reflect.DeepEqual(evt.DeletedIDs, []int64{2, 3}) {
				t.Errorf("DeletedIDs: got %v", evt.DeletedIDs)
			}
		})
	}
}

func TestSourceChannels(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/channels" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		w.Write([]byte(`[
			{"id": 100, "name": "alerts", "broadcast": true},
			{"id": 101, "name": "dm", "broadcast": false}
		]`))
	}))
	defer server.Close()

	s := NewSource(Config{BaseURL: server.URL}, testLogger())
	channels, err := s.Channels(context.Background())
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	want := []bridge.ChannelInfo{
		{ID: 100, Name: "alerts", Broadcast: true},
		{ID: 101, Name: "dm", Broadcast: false},
	}
	if !reflect.DeepEqual(channels, want) {
		t.Errorf("channels: got %+v", channels)
	}
}

func TestSourceMessagesAfter(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/channels/100/messages" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if r.URL.Query().Get("after") != "50" {
			t.Errorf("after: got %q", r.URL.Query().Get("after"))
		}
		w.Write([]byte(`[
			{"id": 51, "text": "one", "reply_to_id": 40},
			{"id": 52, "text": "two", "media": [{"id": "m1", "kind": "photo"}]}
		]`))
	}))
	defer server.Close()

	s := NewSource(Config{BaseURL: server.URL}, testLogger())
	messages, err := s.MessagesAfter(context.Background(), 100, 50)
	if err != nil {
		t.Fatalf("MessagesAfter: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("messages: got %d, want 2", len(messages))
	}
	if messages[0].ID != 51 || messages[0].ChannelID != 100 || messages[0].ReplyToID != 40 {
		t.Errorf("first message: got %+v", messages[0])
	}
	if len(messages[1].Media) != 1 || messages[1].Media[0].ID != "m1" {
		t.Errorf("second message media: got %+v", messages[1].Media)
	}
}

// eventStreamServer upgrades one WebSocket connection and writes the given
// JSON frames to it.
func eventStreamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade: %v", err)
			return
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away so the read
		// pump does not enter its reconnect loop mid-test.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
}

func TestSourceStreamsEventsToHandler(t *testing.T) {
	t.Parallel()
	server := eventStreamServer(t, []string{
		`{"type": "new_message", "channel_id": 100, "message_id": 7, "text": "#alert hi"}`,
		`{"type": "typing", "channel_id": 100}`,
		`{"type": "new_message", "channel_id": 999, "message_id": 8, "text": "not subscribed"}`,
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSource(Config{EventsURL: "ws" + strings.TrimPrefix(server.URL, "http")}, testLogger())
	received := make(chan *bridge.Event, 4)
	s.Subscribe([]int64{100}, func(_ context.Context, evt *bridge.Event) {
		received <- evt
	})
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !s.Connected() || !s.Healthy() {
		t.Error("source should be connected and healthy after Connect")
	}

	select {
	case evt := <-received:
		if evt.Kind != bridge.EventNewMessage || evt.ChannelID != 100 || evt.MessageID != 7 {
			t.Errorf("event: got %+v", evt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the streamed event")
	}

	// The malformed frame and the unsubscribed channel must not reach the
	// handler.
	select {
	case evt := <-received:
		t.Errorf("unexpected extra event: %+v", evt)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSourceConnectFailure(t *testing.T) {
	t.Parallel()
	s := NewSource(Config{EventsURL: "ws://127.0.0.1:1/events"}, testLogger())
	if err := s.Connect(context.Background()); err == nil {
		t.Error("Connect against a dead endpoint should fail")
	}
	if s.Connected() {
		t.Error("failed connect should leave the source disconnected")
	}
}
