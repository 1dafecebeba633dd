// Copyright 2024-2026 Aiku AI

package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/chanbridge/pkg/bridge"
)

// Destination implements bridge.DestinationClient against a gateway's REST
// surface.
type Destination struct {
	rest *restClient
	log  zerolog.Logger

	healthy atomic.Bool

	mu    sync.Mutex
	roles map[int64][]bridge.Role
}

var _ bridge.DestinationClient = (*Destination)(nil)

// NewDestination creates a destination gateway client.
func NewDestination(cfg Config, log zerolog.Logger) *Destination {
	return &Destination{
		rest:  newRESTClient(cfg),
		log:   log.With().Str("component", "dest_transport").Logger(),
		roles: make(map[int64][]bridge.Role),
	}
}

// Connect verifies the gateway is reachable and starts the health pinger.
func (d *Destination) Connect(ctx context.Context) error {
	if err := d.ping(ctx); err != nil {
		return fmt.Errorf("failed to connect destination gateway: %w", err)
	}
	go d.pingLoop(ctx)
	return nil
}

func (d *Destination) ping(ctx context.Context) error {
	err := d.rest.doJSON(ctx, "GET", "/v1/health", nil, nil)
	d.healthy.Store(err == nil)
	return err
}

func (d *Destination) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(healthPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.ping(ctx); err != nil {
				d.log.Warn().Err(err).Msg("Destination health ping failed")
			}
		}
	}
}

// Healthy implements bridge.DestinationClient.
func (d *Destination) Healthy() bool { return d.healthy.Load() }

// Channel implements bridge.DestinationClient. Channel handles are cheap;
// role lists are fetched lazily and cached per channel.
func (d *Destination) Channel(id int64) (bridge.DestinationChannel, error) {
	return &destChannel{dest: d, id: id}, nil
}

type destChannel struct {
	dest *Destination
	id   int64
}

var _ bridge.DestinationChannel = (*destChannel)(nil)

func (c *destChannel) ID() int64 { return c.id }

func (c *destChannel) Send(ctx context.Context, part bridge.PayloadPart, replyToID int64) (int64, error) {
	req := struct {
		Text      string     `json:"text,omitempty"`
		Media     *wireMedia `json:"media,omitempty"`
		ReplyToID int64      `json:"reply_to_id,omitempty"`
	}{
		Text:      part.Text,
		ReplyToID: replyToID,
	}
	if part.Media != nil {
		req.Media = &wireMedia{
			ID:       part.Media.ID,
			Kind:     part.Media.Kind,
			FileName: part.Media.FileName,
			URL:      part.Media.URL,
		}
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	path := fmt.Sprintf("/v1/channels/%d/messages", c.id)
	if err := c.dest.rest.doJSON(ctx, "POST", path, req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *destChannel) EditMessage(ctx context.Context, messageID int64, text string) error {
	req := struct {
		Text string `json:"text"`
	}{Text: text}
	path := fmt.Sprintf("/v1/channels/%d/messages/%d", c.id, messageID)
	return c.dest.rest.doJSON(ctx, "PATCH", path, req, nil)
}

func (c *destChannel) DeleteMessage(ctx context.Context, messageID int64) error {
	path := fmt.Sprintf("/v1/channels/%d/messages/%d", c.id, messageID)
	return c.dest.rest.doJSON(ctx, "DELETE", path, nil, nil)
}

// GuildRoles returns the destination server's roles for this channel,
// cached after the first successful fetch. Lookup failures yield an empty
// list; unresolved mentions are simply skipped upstream.
func (c *destChannel) GuildRoles() []bridge.Role {
	c.dest.mu.Lock()
	if cached, ok := c.dest.roles[c.id]; ok {
		c.dest.mu.Unlock()
		return cached
	}
	c.dest.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var wire []struct {
		Name    string `json:"name"`
		Mention string `json:"mention"`
	}
	path := fmt.Sprintf("/v1/channels/%d/roles", c.id)
	if err := c.dest.rest.doJSON(ctx, "GET", path, nil, &wire); err != nil {
		c.dest.log.Error().Err(err).Int64("channel_id", c.id).Msg("Failed to fetch guild roles")
		return nil
	}

	roles := make([]bridge.Role, 0, len(wire))
	for _, r := range wire {
		roles = append(roles, bridge.Role{Name: r.Name, Mention: r.Mention})
	}
	c.dest.mu.Lock()
	c.dest.roles[c.id] = roles
	c.dest.mu.Unlock()
	return roles
}
