// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// mockSource is a scriptable SourceClient for engine tests.
type mockSource struct {
	mu sync.Mutex

	connected bool
	healthy   bool

	channels    []ChannelInfo
	channelsErr error

	// history maps channel id to the full message history, unordered.
	history    map[int64][]SourceMessage
	historyErr error

	subscribedIDs []int64
	handler       EventHandler
}

var _ SourceClient = (*mockSource)(nil)

func (m *mockSource) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockSource) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *mockSource) Channels(_ context.Context) ([]ChannelInfo, error) {
	if m.channelsErr != nil {
		return nil, m.channelsErr
	}
	return m.channels, nil
}

func (m *mockSource) Subscribe(channelIDs []int64, handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribedIDs = channelIDs
	m.handler = handler
}

func (m *mockSource) MessagesAfter(_ context.Context, channelID, afterID int64) ([]SourceMessage, error) {
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	var out []SourceMessage
	for _, msg := range m.history[channelID] {
		if msg.ID > afterID {
			out = append(out, msg)
		}
	}
	return out, nil
}

// sentPart records one Send call on a mock destination channel.
type sentPart struct {
	Part    PayloadPart
	ReplyTo int64
}

// mockChannel is a scriptable DestinationChannel. Send assigns sequential
// message ids starting at nextID+1.
type mockChannel struct {
	mu sync.Mutex

	id     int64
	nextID int64

	sends []sentPart
	// sendErr fails Send calls with index >= failFrom.
	sendErr  error
	failFrom int

	edits     map[int64]string
	editErr   error
	deletes   []int64
	deleteErr error

	roles     []Role
	roleCalls int
}

var _ DestinationChannel = (*mockChannel)(nil)

func (c *mockChannel) ID() int64 { return c.id }

func (c *mockChannel) Send(_ context.Context, part PayloadPart, replyToID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil && len(c.sends) >= c.failFrom {
		return 0, c.sendErr
	}
	c.sends = append(c.sends, sentPart{Part: part, ReplyTo: replyToID})
	c.nextID++
	return c.nextID, nil
}

func (c *mockChannel) EditMessage(_ context.Context, messageID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editErr != nil {
		return c.editErr
	}
	if c.edits == nil {
		c.edits = make(map[int64]string)
	}
	c.edits[messageID] = text
	return nil
}

func (c *mockChannel) DeleteMessage(_ context.Context, messageID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deletes = append(c.deletes, messageID)
	return nil
}

func (c *mockChannel) GuildRoles() []Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roleCalls++
	return c.roles
}

func (c *mockChannel) sentParts() []sentPart {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]sentPart, len(c.sends))
	copy(cp, c.sends)
	return cp
}

// mockDest is a scriptable DestinationClient backed by mock channels.
type mockDest struct {
	healthy    bool
	channels   map[int64]*mockChannel
	channelErr error
}

var _ DestinationClient = (*mockDest)(nil)

func (m *mockDest) Healthy() bool { return m.healthy }

func (m *mockDest) Channel(id int64) (DestinationChannel, error) {
	if m.channelErr != nil {
		return nil, m.channelErr
	}
	ch, ok := m.channels[id]
	if !ok {
		return nil, ErrDestinationNotFound
	}
	return ch, nil
}

// stubTransformer is a pass-through text and media transformer. A positive
// splitAt chops text into fixed-size chunks.
type stubTransformer struct {
	splitAt      int
	transformErr error
}

var (
	_ TextTransformer  = (*stubTransformer)(nil)
	_ MediaTransformer = (*stubTransformer)(nil)
)

func (s *stubTransformer) TransformText(evt *Event, _ *Route, _ bool, _ []string) (string, error) {
	if s.transformErr != nil {
		return "", s.transformErr
	}
	return evt.Text, nil
}

func (s *stubTransformer) Split(text string) []string {
	if s.splitAt <= 0 || len(text) <= s.splitAt {
		return []string{text}
	}
	var parts []string
	for len(text) > s.splitAt {
		parts = append(parts, text[:s.splitAt])
		text = text[s.splitAt:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func (s *stubTransformer) TransformMedia(_ context.Context, evt *Event) ([]PayloadPart, error) {
	parts := make([]PayloadPart, 0, len(evt.Media))
	for i := range evt.Media {
		media := evt.Media[i]
		parts = append(parts, PayloadPart{Media: &media})
	}
	return parts, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "bridge.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return store
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// newTestBridge wires an engine around the given mocks with the
// subscriptions pre-resolved.
func newTestBridge(t *testing.T, cfg *Config, source *mockSource, dest *mockDest, subs []Subscription) *Bridge {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	b := New(cfg, source, dest, newTestStore(t), &stubTransformer{}, &stubTransformer{}, testLogger())
	b.subs = subs
	return b
}
