// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// AdminServer exposes the operator surface: health snapshot, Prometheus
// metrics and the missed-forward records.
type AdminServer struct {
	addr   string
	health *HealthMonitor
	store  *Store
	log    zerolog.Logger
}

// NewAdminServer creates the admin HTTP server.
func NewAdminServer(addr string, health *HealthMonitor, store *Store, log zerolog.Logger) *AdminServer {
	return &AdminServer{
		addr:   addr,
		health: health,
		store:  store,
		log:    log.With().Str("component", "admin").Logger(),
	}
}

// Serve implements suture.Service.
func (a *AdminServer) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/missed", a.handleMissed)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         a.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.addr).Msg("Starting admin API")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snapshot := a.health.Snapshot()
	status := http.StatusOK
	if !snapshot["online"] {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snapshot, a.log)
}

func (a *AdminServer) handleMissed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	records, err := a.store.MissedForwards(r.URL.Query().Get("route"))
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to list missed forwards")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	type missedEntry struct {
		Route              string    `json:"route"`
		SourceID           int64     `json:"source_id"`
		DestinationChannel int64     `json:"destination_channel"`
		Reason             string    `json:"reason"`
		At                 time.Time `json:"at"`
	}
	entries := make([]missedEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, missedEntry{
			Route:              rec.RouteName,
			SourceID:           rec.SourceID,
			DestinationChannel: rec.DestinationChannel,
			Reason:             rec.Reason,
			At:                 rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, entries, a.log)
}

func writeJSON(w http.ResponseWriter, status int, v any, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
