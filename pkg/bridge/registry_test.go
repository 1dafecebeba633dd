// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testRegistry(logUnhandled bool) *Registry {
	r := NewRegistry(testLogger(), logUnhandled)
	r.connectAttempts = 2
	r.connectBackoff = time.Millisecond
	return r
}

func TestRegistryResolveByIDAndName(t *testing.T) {
	t.Parallel()
	source := &mockSource{
		connected: true,
		channels: []ChannelInfo{
			{ID: 100, Name: "alerts", Broadcast: true},
			{ID: 101, Name: "general", Broadcast: true},
		},
	}
	routes := []Route{
		{Name: "by-id", SourceChannel: ChannelRef{ID: 100}, DestinationChannel: 1},
		{Name: "by-name", SourceChannel: ChannelRef{Name: "general"}, DestinationChannel: 2},
	}

	subs, err := testRegistry(false).Resolve(context.Background(), routes, source)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("subscriptions: got %d, want 2", len(subs))
	}
	if subs[0].Channel.ID != 100 || subs[0].Route.Name != "by-id" {
		t.Errorf("id match: got %+v", subs[0])
	}
	if subs[1].Channel.ID != 101 || subs[1].Route.Name != "by-name" {
		t.Errorf("name match: got %+v", subs[1])
	}
}

func TestRegistryResolveNameIsCaseSensitive(t *testing.T) {
	t.Parallel()
	source := &mockSource{
		connected: true,
		channels: []ChannelInfo{
			{ID: 100, Name: "General", Broadcast: true},
		},
	}
	routes := []Route{
		{Name: "r", SourceChannel: ChannelRef{Name: "general"}, DestinationChannel: 1},
	}
	_, err := testRegistry(false).Resolve(context.Background(), routes, source)
	if !errors.Is(err, ErrNoSubscriptions) {
		t.Errorf("case mismatch should resolve nothing, got %v", err)
	}
}

func TestRegistryResolveSkipsNonBroadcast(t *testing.T) {
	t.Parallel()
	source := &mockSource{
		connected: true,
		channels: []ChannelInfo{
			{ID: 100, Name: "dm", Broadcast: false},
			{ID: 101, Name: "news", Broadcast: true},
		},
	}
	routes := []Route{
		{Name: "dm-route", SourceChannel: ChannelRef{ID: 100}, DestinationChannel: 1},
		{Name: "news-route", SourceChannel: ChannelRef{ID: 101}, DestinationChannel: 2},
	}

	subs, err := testRegistry(true).Resolve(context.Background(), routes, source)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(subs) != 1 || subs[0].Route.Name != "news-route" {
		t.Errorf("non-broadcast channel should be excluded: got %+v", subs)
	}
}

func TestRegistryResolveDropsUnmatchedRoute(t *testing.T) {
	t.Parallel()
	source := &mockSource{
		connected: true,
		channels:  []ChannelInfo{{ID: 100, Name: "alerts", Broadcast: true}},
	}
	routes := []Route{
		{Name: "live", SourceChannel: ChannelRef{ID: 100}, DestinationChannel: 1},
		{Name: "gone", SourceChannel: ChannelRef{ID: 999}, DestinationChannel: 2},
	}

	subs, err := testRegistry(false).Resolve(context.Background(), routes, source)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(subs) != 1 || subs[0].Route.Name != "live" {
		t.Errorf("unmatched route should be dropped: got %+v", subs)
	}
}

func TestRegistryResolveNoSubscriptions(t *testing.T) {
	t.Parallel()
	source := &mockSource{connected: true}
	routes := []Route{
		{Name: "r", SourceChannel: ChannelRef{ID: 100}, DestinationChannel: 1},
	}
	_, err := testRegistry(false).Resolve(context.Background(), routes, source)
	if !errors.Is(err, ErrNoSubscriptions) {
		t.Errorf("got %v, want ErrNoSubscriptions", err)
	}
}

func TestRegistryResolveSourceNeverConnects(t *testing.T) {
	t.Parallel()
	source := &mockSource{connected: false}
	routes := []Route{
		{Name: "r", SourceChannel: ChannelRef{ID: 100}, DestinationChannel: 1},
	}
	_, err := testRegistry(false).Resolve(context.Background(), routes, source)
	if !errors.Is(err, ErrSourceNotConnected) {
		t.Errorf("got %v, want ErrSourceNotConnected", err)
	}
}

func TestRegistryResolveCanceledWhileWaiting(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := &mockSource{connected: false}
	routes := []Route{
		{Name: "r", SourceChannel: ChannelRef{ID: 100}, DestinationChannel: 1},
	}
	_, err := testRegistry(false).Resolve(ctx, routes, source)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestSubscriptionChannelIDs(t *testing.T) {
	t.Parallel()
	routeA := &Route{Name: "a"}
	routeB := &Route{Name: "b"}
	subs := []Subscription{
		{Route: routeA, Channel: ChannelInfo{ID: 5}},
		{Route: routeB, Channel: ChannelInfo{ID: 5}},
		{Route: routeA, Channel: ChannelInfo{ID: 9}},
	}
	ids := SubscriptionChannelIDs(subs)
	if len(ids) != 2 || ids[0] != 5 || ids[1] != 9 {
		t.Errorf("got %v, want [5 9]", ids)
	}
}
