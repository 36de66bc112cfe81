package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	paywall "github.com/paywall-labs/paywall-go"
	"github.com/paywall-labs/paywall-go/config"
	"github.com/paywall-labs/paywall-go/internal/logger"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// A local .env is a convenience for development, not a requirement.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting paywall demo host",
		"version", Version,
		"build_time", BuildTime,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sdk, err := paywall.New(ctx, cfg, paywall.Hooks{})
	if err != nil {
		logger.Error("Failed to construct SDK", "error", err)
		os.Exit(1)
	}
	defer sdk.Close(ctx)

	sdk.Subscribe(paywall.EventReady, func(paywall.Event) {
		logger.Info("SDK ready")
	})
	sdk.Subscribe(paywall.EventPaymentSuccess, func(ev paywall.Event) {
		logger.Info("Payment succeeded", "provider", ev.Provider, "data", ev.Data)
	})
	sdk.Subscribe(paywall.EventPaymentFailure, func(ev paywall.Event) {
		logger.Warn("Payment failed", "provider", ev.Provider, "error", ev.Err)
	})

	if err := sdk.Init(ctx); err != nil {
		logger.Error("SDK init failed", "error", err)
		os.Exit(1)
	}

	h := &handler{sdk: sdk}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.health)
	r.Get("/paywall", h.paywall)
	r.Post("/select", h.selectBundle)
	r.Post("/track", h.track)
	r.Post("/attribution", h.attribution)
	r.Post("/checkout", h.checkout)
	r.Get("/deeplink", h.deepLink)

	addr := envOr("PAYWALL_DEMO_ADDR", ":8080")
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exited")
}

type handler struct {
	sdk *paywall.SDK
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func (h *handler) paywall(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"placement": h.sdk.CurrentPlacement(),
		"paywall":   h.sdk.CurrentPaywall(),
		"bundle":    h.sdk.CurrentBundle(),
		"products":  h.sdk.Products(),
		"providers": h.sdk.AvailableProviders(),
	})
}

func (h *handler) selectBundle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Placement string `json:"placement"`
		Index     int    `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.sdk.SelectPlacementProduct(r.Context(), req.Placement, req.Index); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bundle": h.sdk.CurrentBundle()})
}

func (h *handler) track(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string         `json:"name"`
		Properties map[string]any `json:"properties"`
		Refresh    bool           `json:"refresh_placements"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.sdk.Track(r.Context(), req.Name, req.Properties, nil, req.Refresh)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *handler) attribution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source  string         `json:"source"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.sdk.SetAttribution(r.Context(), req.Source, req.Payload); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// checkout mounts a headless card form and submits it immediately. It exists
// to exercise the full machine from an HTTP client; a real host page owns
// the form lifecycle instead.
func (h *handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	surface := &headlessSurface{}
	err := h.sdk.ShowPaymentForm(r.Context(), paywall.ProviderKind(req.Provider), surface, paywall.Options{})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	surface.submit()

	writeJSON(w, http.StatusOK, map[string]any{
		"button": surface.button(),
		"errors": surface.shownErrors(),
	})
}

func (h *handler) deepLink(w http.ResponseWriter, r *http.Request) {
	link, ok := h.sdk.DeepLink(r.Context())
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no deep link"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deep_link": link})
}

// headlessSurface satisfies the form contract without a page
type headlessSurface struct {
	mu       sync.Mutex
	submitFn func()
	state    paywall.ButtonState
	messages []string
}

func (s *headlessSurface) MountElements(clientSecret string) error { return nil }

func (s *headlessSurface) BindSubmit(fn func()) func() {
	s.mu.Lock()
	s.submitFn = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.submitFn = nil
		s.mu.Unlock()
	}
}

func (s *headlessSurface) SetButton(state paywall.ButtonState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *headlessSurface) ShowError(message string) {
	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()
}

func (s *headlessSurface) submit() {
	s.mu.Lock()
	fn := s.submitFn
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *headlessSurface) button() paywall.ButtonState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *headlessSurface) shownErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
