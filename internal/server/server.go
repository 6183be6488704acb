// Package server exposes stored runs over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/tanksim/internal/export"
	"github.com/san-kum/tanksim/internal/storage"
)

type Server struct {
	store  *storage.Store
	logger *slog.Logger
}

func New(store *storage.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{store: store, logger: logger}
}

// Router returns the API routes:
//
//	GET /health
//	GET /runs
//	GET /runs/{id}
//	GET /runs/{id}/config
//	GET /runs/{id}/trajectory[?format=csv]
//	GET /runs/{id}/plot.svg
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/runs", s.listRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", s.getRun).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/config", s.getConfig).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/trajectory", s.getTrajectory).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/plot.svg", s.getPlot).Methods(http.MethodGet)

	return r
}

// Handler wraps the router with access logging to accessLog.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	return handlers.LoggingHandler(accessLog, s.Router())
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, accessLog io.Writer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(accessLog),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("serving runs", "addr", addr, "dir", s.store.Dir())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.store.List()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	meta, err := s.store.Load(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.LoadConfig(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

func (s *Server) getTrajectory(w http.ResponseWriter, r *http.Request) {
	tr, err := s.store.LoadTrajectory(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, tr)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		if err := storage.WriteCSV(w, tr); err != nil {
			s.logger.Error("write csv", "err", err)
		}
	default:
		http.Error(w, "unknown format", http.StatusBadRequest)
	}
}

func (s *Server) getPlot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tr, err := s.store.LoadTrajectory(id)
	if err != nil {
		s.fail(w, err)
		return
	}
	opts := export.DefaultSVGOptions()
	opts.Title = id
	w.Header().Set("Content-Type", "image/svg+xml")
	if err := export.WriteSVG(w, tr, opts); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrRunNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if errors.Is(err, storage.ErrInvalidRunID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Error("request failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
