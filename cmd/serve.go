package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-lending/recon-cli/internal/monitoring"
	"github.com/meridian-lending/recon-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server for reconciliation requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		port := resolvePort(servePort, cfg.Server.Port)
		return startServer(ctx, newRouter(ctx, env), port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP routes. Runs triggered over the wire execute
// asynchronously against ctx, which outlives the request.
func newRouter(ctx context.Context, env *runEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		snap, err := monitoring.NewCollector(env.Store).Collect(req.Context(), 24)
		if err != nil {
			zap.L().Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"runs_total":     snap.RunsTotal,
			"runs_active":    snap.RunsActive,
			"runs_blocked":   snap.RunsBlocked,
			"runs_failed":    snap.RunsFailed,
			"blocked_rate":   snap.BlockedRate,
			"lookback_hours": snap.LookbackHours,
		})
	})

	r.Post("/runs", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			LoanNumber string `json:"loan_number"`
			Mode       string `json:"mode"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if body.LoanNumber == "" {
			http.Error(w, `{"error":"loan_number is required"}`, http.StatusBadRequest)
			return
		}
		mode, err := pickMode(body.Mode)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
			return
		}

		// Run asynchronously; the caller polls GET /runs/{id} for the outcome.
		go func() {
			if env.Pipeline == nil {
				return
			}
			runCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.RunTimeout())
			defer cancel()
			run, err := env.Pipeline.Run(runCtx, body.LoanNumber, mode)
			if err != nil {
				zap.L().Error("webhook run failed",
					zap.String("loan", body.LoanNumber),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook run finished",
				zap.String("loan", body.LoanNumber),
				zap.String("run_id", run.ID),
				zap.String("status", string(run.Status)),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"loan_number": body.LoanNumber,
		})
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		runID := chi.URLParam(req, "id")
		run, err := env.Store.GetRun(req.Context(), runID)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
				return
			}
			zap.L().Error("run lookup failed", zap.String("run_id", runID), zap.Error(err))
			http.Error(w, `{"error":"run lookup failed"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func resolvePort(flag, fallback int) int {
	if flag != 0 {
		return flag
	}
	return fallback
}

func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
