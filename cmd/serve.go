package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/model"
	"github.com/sells-group/labvault/internal/monitoring"
	"github.com/sells-group/labvault/internal/pipeline"
	"github.com/sells-group/labvault/internal/source"
	"github.com/sells-group/labvault/internal/store"
	"github.com/sells-group/labvault/internal/vault"
)

// maxDocumentBytes caps POST /documents bodies.
const maxDocumentBytes = 32 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for document submission and vault lookups",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Ledger != nil {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Ledger),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newAPI(env).routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// api serves the HTTP routes over one environment.
type api struct {
	pipeline *pipeline.Pipeline
	vault    *vault.Store
	ledger   store.Store
	metrics  *monitoring.Metrics
}

func newAPI(env *appEnv) *api {
	return &api{
		pipeline: env.Pipeline,
		vault:    env.Vault,
		ledger:   env.Ledger,
		metrics:  env.Metrics,
	}
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Post("/documents", a.submitDocument)
	r.Get("/patients", a.listPatients)
	r.Get("/patients/{id}", a.getPatient)
	r.Get("/runs", a.listRuns)
	r.Get("/runs/{id}", a.getRun)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler())
	}
	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"patients": len(a.vault.Registry()),
	})
}

// submitDocument decodes a JSON document and processes it synchronously.
// The optional ?name= query names the document in the vault and ledger.
func (a *api) submitDocument(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.json"
	}

	doc, err := source.DecodeJSON(http.MaxBytesReader(w, r.Body, maxDocumentBytes), name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Admission runs to completion even if the client goes away.
	res, err := a.pipeline.Process(context.WithoutCancel(r.Context()), doc)
	switch {
	case err == nil:
		status := http.StatusOK
		if res.IsNewPatient {
			status = http.StatusCreated
		}
		writeJSON(w, status, res)
	case errors.Is(err, vault.ErrPersistence):
		writeJSON(w, http.StatusInternalServerError, res)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, res)
	}
}

func (a *api) listPatients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.vault.Records())
}

func (a *api) getPatient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := a.vault.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, eris.Errorf("patient %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	if a.ledger == nil {
		writeError(w, http.StatusNotFound, eris.New("run ledger is disabled"))
		return
	}

	q := r.URL.Query()
	filter := model.RunFilter{Status: model.RunStatus(q.Get("status"))}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "limit"))
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "offset"))
		return
	}
	if s := q.Get("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "since"))
			return
		}
		filter.CreatedAfter = time.Now().Add(-d)
	}

	runs, err := a.ledger.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) getRun(w http.ResponseWriter, r *http.Request) {
	if a.ledger == nil {
		writeError(w, http.StatusNotFound, eris.New("run ledger is disabled"))
		return
	}

	run, err := a.ledger.GetRun(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, run)
	}
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("must be a non-negative integer, got %q", s)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
