package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
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

	"github.com/sells-group/dps-crimelog/internal/archive"
	"github.com/sells-group/dps-crimelog/internal/metrics"
	"github.com/sells-group/dps-crimelog/internal/synclog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the archive and run history over HTTP (read-only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runlog, err := synclog.Open(ctx, cfg.RunLog)
		if err != nil {
			return err
		}
		defer runlog.Close() //nolint:errcheck

		store := archive.NewStore(cfg.Archive)
		router := buildRouter(store, runlog, cfg.Server.AllowedOrigins)

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("archive", store.CSVPath()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (0 = server.port)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the read-only routes over the archive and run log.
func buildRouter(store *archive.Store, runlog synclog.Log, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/incidents.csv", serveArchiveFile(store.CSVPath(), "text/csv; charset=utf-8"))
	r.Get("/incidents.json", serveArchiveFile(store.JSONPath(), "application/json"))

	r.Get("/incidents", func(w http.ResponseWriter, req *http.Request) {
		q, err := parseIncidentQuery(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		snap, err := store.Load()
		if err != nil {
			zap.L().Error("serve: load archive", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive unavailable"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := archive.WriteJSON(w, archive.Filter(snap.Records, q)); err != nil {
			zap.L().Warn("serve: write incidents", zap.Error(err))
		}
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		limit, err := intParam(req, "limit")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		entries, err := runlog.List(req.Context(), limit)
		if err != nil {
			zap.L().Error("serve: list runs", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run log unavailable"})
			return
		}
		if entries == nil {
			entries = []synclog.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		m, err := runMetrics(req.Context(), store, runlog)
		if err != nil {
			zap.L().Error("serve: build metrics", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "metrics unavailable"})
			return
		}
		m.Handler().ServeHTTP(w, req)
	})

	return r
}

// metricsRunWindow bounds how many recorded runs feed the /metrics counters.
const metricsRunWindow = 100

// runMetrics rebuilds the sync metrics from the run log. Sync runs happen in
// separate processes, so each scrape replays the recorded runs, oldest first,
// into a fresh registry. Runs still in progress or failed are skipped.
func runMetrics(ctx context.Context, store *archive.Store, runlog synclog.Log) (*metrics.Metrics, error) {
	m := metrics.New()

	entries, err := runlog.List(ctx, metricsRunWindow)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.CompletedAt == nil || e.Status == synclog.StatusFailed {
			continue
		}
		days, err := runlog.Days(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		m.Observe(e.Result(days), *e.CompletedAt)
	}

	snap, err := store.Load()
	if err != nil {
		return nil, err
	}
	m.SetArchiveRecords(len(snap.Records))
	return m, nil
}

func serveArchiveFile(path, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "archive not found"})
			return
		}
		if err != nil {
			zap.L().Error("serve: open archive file", zap.String("path", path), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive unavailable"})
			return
		}
		defer f.Close() //nolint:errcheck

		info, err := f.Stat()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive unavailable"})
			return
		}
		w.Header().Set("Content-Type", contentType)
		http.ServeContent(w, req, "", info.ModTime(), f)
	}
}

func parseIncidentQuery(req *http.Request) (archive.Query, error) {
	q := archive.Query{EventID: req.URL.Query().Get("event_id")}

	if s := req.URL.Query().Get("since"); s != "" {
		since, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return q, eris.Errorf("invalid since %q (want YYYY-MM-DD)", s)
		}
		q.Since = since
	}

	limit, err := intParam(req, "limit")
	if err != nil {
		return q, err
	}
	q.Limit = limit
	return q, nil
}

func intParam(req *http.Request, name string) (int, error) {
	v := req.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
