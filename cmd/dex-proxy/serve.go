package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/pokedex-client/pkg/aggregate"
	"github.com/Sternrassler/pokedex-client/pkg/catalog"
	"github.com/Sternrassler/pokedex-client/pkg/client"
	"github.com/Sternrassler/pokedex-client/pkg/collection"
	"github.com/Sternrassler/pokedex-client/pkg/dex"
	"github.com/Sternrassler/pokedex-client/pkg/metrics"
)

// requestTimeout bounds one proxied request.
const requestTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, svc, logger, err := setup()
			if err != nil {
				return err
			}
			defer svc.Close()

			addr := cfg.Server.Listen
			if listen != "" {
				addr = listen
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go purgeOnSignal(cmd.Context(), hup, svc, logger)

			srv := &http.Server{
				Addr:              addr,
				Handler:           newHandler(svc, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(cmd.Context(), srv, cfg.Server.ShutdownTimeout, logger)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides server.listen)")
	return cmd
}

// serve runs srv until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Starting dex proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

type purger interface {
	PurgeCache() int
}

// purgeOnSignal empties the in-process cache on every signal until ctx ends.
func purgeOnSignal(ctx context.Context, sigs <-chan os.Signal, p purger, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			n := p.PurgeCache()
			logger.Info().Str("signal", sig.String()).Int("entries", n).Msg("Cache purged")
		}
	}
}

// service is the subset of *dex.Service the handlers use.
type service interface {
	GetComposite(ctx context.Context, idOrName string, variant aggregate.Variant) (*aggregate.Composite, error)
	GetPage(ctx context.Context, page, size int) (*collection.Page, error)
	GetPageByCategory(ctx context.Context, category string, page, size int) (*collection.Page, error)
	GetCategoryList(ctx context.Context) ([]string, error)
	SuggestNames(ctx context.Context, prefix string, limit int) ([]string, error)
	Ping(ctx context.Context) error
}

var (
	_ service = (*dex.Service)(nil)
	_ purger  = (*dex.Service)(nil)
)

type handler struct {
	svc    service
	logger zerolog.Logger
}

func newHandler(svc service, logger zerolog.Logger) http.Handler {
	h := &handler{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/pokemon/{idOrName}", h.composite)
	mux.HandleFunc("GET /api/pokemon", h.page)
	mux.HandleFunc("GET /api/types", h.types)
	mux.HandleFunc("GET /api/suggest", h.suggest)
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Health check failed")
		http.Error(w, "Redis not available", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (h *handler) composite(w http.ResponseWriter, r *http.Request) {
	variant, err := aggregate.ParseVariant(r.URL.Query().Get("variant"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.svc.GetComposite(ctx, r.PathValue("idOrName"), variant)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, c)
}

func (h *handler) page(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number, err := intParam(q.Get("page"), 1)
	if err != nil {
		http.Error(w, "invalid page", http.StatusBadRequest)
		return
	}
	size, err := intParam(q.Get("size"), 0)
	if err != nil {
		http.Error(w, "invalid size", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var page *collection.Page
	if category := q.Get("type"); category != "" {
		page, err = h.svc.GetPageByCategory(ctx, category, number, size)
	} else {
		page, err = h.svc.GetPage(ctx, number, size)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, page)
}

func (h *handler) types(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.GetCategoryList(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, names)
}

func (h *handler) suggest(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("max"), dex.DefaultSuggestions)
	if err != nil {
		http.Error(w, "invalid max", http.StatusBadRequest)
		return
	}

	names, err := h.svc.SuggestNames(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, names)
}

// fail maps service errors to status codes. An absent composite caused by
// an upstream failure wraps that failure and is reported as 502, not 404.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		statusErr   *catalog.StatusError
		upstreamErr *client.UpstreamError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, client.ErrCanceled):
		if r.Context().Err() != nil {
			// client went away
			return
		}
		http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
	case errors.As(err, &statusErr):
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream returned an error status")
		http.Error(w, "upstream error", http.StatusBadGateway)
	case errors.As(err, &upstreamErr):
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream unreachable")
		http.Error(w, "upstream error", http.StatusBadGateway)
	case errors.Is(err, catalog.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		http.Error(w, "upstream request failed", http.StatusBadGateway)
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
