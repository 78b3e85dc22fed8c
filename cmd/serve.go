package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pipeline control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(e),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", handleCreateRun(e))
		r.Get("/", handleListRuns(e))
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", handleGetRun(e))
			r.Get("/leads", handleListLeads(e))
			r.Post("/start-research", runOp(e.Controller.StartResearch))
			r.Post("/pause", runOp(e.Controller.Pause))
			r.Post("/resume", runOp(e.Controller.Resume))
			r.Post("/restart-prescreen", runOp(e.Controller.RestartPrescreen))
			r.Post("/force-restart", runOp(e.Controller.ForceRestart))
			r.Post("/mark-complete", runOp(e.Controller.MarkComplete))
			r.Post("/clear-research", runOp(e.Controller.ClearResearch))
			r.Post("/reset-prescreen", runOp(e.Controller.ResetPrescreen))
		})
	})

	r.Route("/leads/{leadID}", func(r chi.Router) {
		r.Get("/", handleGetLead(e))
		r.Get("/emails", handleListEmails(e))
		r.Post("/override-grade", handleOverrideGrade(e))
	})

	r.Get("/eligibility", handleEligibility(e))

	return r
}

func handleCreateRun(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID      string              `json:"user_id"`
			Queries     []model.SearchQuery `json:"queries"`
			TargetCount int                 `json:"target_count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		run, err := e.Controller.CreateRun(r.Context(), req.UserID, req.Queries, req.TargetCount)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, run)
	}
}

func handleListRuns(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := e.Store.ListRuns(r.Context(), store.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
			UserID: r.URL.Query().Get("user_id"),
		})
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetRun(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := e.Store.GetRun(r.Context(), chi.URLParam(r, "runID"))
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleListLeads(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		leads, err := e.Store.ListLeads(r.Context(), chi.URLParam(r, "runID"))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, leads)
	}
}

func handleGetLead(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lead, err := e.Store.GetLead(r.Context(), chi.URLParam(r, "leadID"))
		if err != nil {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		writeJSON(w, http.StatusOK, lead)
	}
}

func handleListEmails(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := e.Store.ListEmailRecords(r.Context(), chi.URLParam(r, "leadID"))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleOverrideGrade(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Grade string `json:"grade"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := e.Controller.OverrideGrade(r.Context(), chi.URLParam(r, "leadID"), model.Grade(req.Grade)); err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func handleEligibility(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if email == "" {
			writeError(w, http.StatusBadRequest, "email query parameter is required")
			return
		}
		result, err := e.Controller.CheckEligibility(r.Context(), email)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// runOp adapts a run-scoped controller operation into a handler.
func runOp(fn func(ctx context.Context, runID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context(), chi.URLParam(r, "runID")); err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// writeOpError maps guard violations to 409 and everything else to 500.
func writeOpError(w http.ResponseWriter, err error) {
	if pipeline.IsPolicy(err) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	zap.L().Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
