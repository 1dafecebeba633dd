// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const probeTimeout = 5 * time.Second

// HealthMonitor periodically probes internet connectivity and polls both
// network clients' health flags. The recovery loop reads its state instead
// of probing on its own.
type HealthMonitor struct {
	source    SourceClient
	dest      DestinationClient
	probeAddr string
	interval  time.Duration
	log       zerolog.Logger

	online atomic.Bool
}

// NewHealthMonitor creates a monitor probing probeAddr every interval.
func NewHealthMonitor(source SourceClient, dest DestinationClient, probeAddr string, interval time.Duration, log zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		source:    source,
		dest:      dest,
		probeAddr: probeAddr,
		interval:  interval,
		log:       log.With().Str("component", "health").Logger(),
	}
}

// Online reports the result of the last connectivity probe.
func (h *HealthMonitor) Online() bool { return h.online.Load() }

// SourceHealthy polls the source client's health flag.
func (h *HealthMonitor) SourceHealthy() bool { return h.source.Healthy() }

// DestinationHealthy polls the destination client's health flag.
func (h *HealthMonitor) DestinationHealthy() bool { return h.dest.Healthy() }

// Snapshot returns the current health state for the admin endpoint.
func (h *HealthMonitor) Snapshot() map[string]bool {
	return map[string]bool{
		"online":      h.Online(),
		"source":      h.SourceHealthy(),
		"destination": h.DestinationHealthy(),
	}
}

// Serve implements suture.Service. It probes immediately, then on every
// interval tick until the context is canceled.
func (h *HealthMonitor) Serve(ctx context.Context) error {
	h.probe(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

func (h *HealthMonitor) probe(ctx context.Context) {
	dialer := net.Dialer{Timeout: probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", h.probeAddr)
	if err != nil {
		if h.online.Swap(false) {
			h.log.Warn().Err(err).Str("probe_addr", h.probeAddr).Msg("Unable to reach the internet")
		}
		metricOnline.Set(0)
		return
	}
	_ = conn.Close()
	if !h.online.Swap(true) {
		h.log.Info().Msg("Internet connectivity confirmed")
	}
	metricOnline.Set(1)

	h.log.Debug().
		Bool("source_healthy", h.SourceHealthy()).
		Bool("destination_healthy", h.DestinationHealthy()).
		Msg("Health probe complete")
}
