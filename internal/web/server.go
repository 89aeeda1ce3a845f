package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/myersendurance/coachd/internal/catalog"
	"github.com/myersendurance/coachd/internal/checkout"
	"github.com/myersendurance/coachd/internal/email"
	"github.com/myersendurance/coachd/internal/logging"
	"github.com/myersendurance/coachd/internal/store"
)

// Run starts the coaching backend HTTP server with graceful shutdown.
func Run(ctx context.Context, version string) error {
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "coachd",
	})

	log.Info().Str("version", version).Msg("Starting coaching backend")

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	mode := cfg.ResolvedCatalogMode()
	cat, err := catalog.New(mode)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}
	log.Info().Str("catalog_mode", string(mode)).Msg("Product catalog loaded")

	// Email sender: Resend when configured, otherwise log-only.
	var sender email.Sender
	if cfg.ResendAPIKey != "" {
		sender = email.NewResendSender(cfg.ResendAPIKey)
		log.Info().Msg("Email sender configured (Resend)")
	} else {
		sender = email.NewLogSender(func(to, subject, body string) {
			const maxBody = 4096
			bodyForLog := body
			if len(bodyForLog) > maxBody {
				bodyForLog = bodyForLog[:maxBody] + "...(truncated)"
			}
			log.Info().
				Str("to", to).
				Str("subject", subject).
				Str("body", bodyForLog).
				Msg("Email (log-only, no email provider configured)")
		})
		log.Info().Msg("Email sender: log-only (set RESEND_API_KEY to enable)")
	}

	var notifier *email.Notifier
	if cfg.OwnerEmail != "" {
		notifier = email.NewNotifier(sender, cfg.EmailFrom, cfg.OwnerEmail, cat.DisplayName)
	} else {
		log.Warn().Msg("OWNER_EMAIL not set, purchase notifications disabled")
	}

	deps := &Deps{
		Config:    cfg,
		Store:     st,
		Catalog:   cat,
		Sessions:  checkout.NewSessionCreator(cfg.StripeAPIKey),
		Fulfiller: checkout.NewFulfiller(st, cat, notifier),
		Version:   version,
	}
	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           RequestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		log.Info().Str("addr", addr).Msg("Coaching backend listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	log.Info().Msg("Coaching backend stopped")
	return nil
}
