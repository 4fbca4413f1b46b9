package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Sternrassler/klaviyo-extractor/pkg/metrics"
	"github.com/Sternrassler/klaviyo-extractor/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// quotaStaleAfter marks a quota snapshot as outdated when no response
// has refreshed it for this long.
const quotaStaleAfter = 2 * time.Minute

// quotaSource is satisfied by *client.Client.
type quotaSource interface {
	Quota() *ratelimit.QuotaTracker
}

func newRouter(q quotaSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler)
	r.Get("/quota", quotaHandler(q))
	r.Handle("/metrics", metrics.Handler())

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

type quotaResponse struct {
	*ratelimit.QuotaState
	Stale bool `json:"stale"`
}

func quotaHandler(q quotaSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		tracker := q.Quota()
		if tracker == nil {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "quota tracking requires redis"})
			return
		}

		state, err := tracker.State(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(quotaResponse{
			QuotaState: state,
			Stale:      state.IsStale(quotaStaleAfter),
		})
	}
}

// startServer returns once addr is bound; serving continues in the background.
func startServer(addr string, handler http.Handler, logger zerolog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving /metrics and /healthz")
	return srv, nil
}

func shutdownServer(srv *http.Server, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
}
