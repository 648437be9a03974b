package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/vpbank/sfp_collector/models"
	sqlitestore "github.com/vpbank/sfp_collector/pkg/sfpcollector/store/sqlite"
)

// Handler builds the full HTTP handler chain: router, CORS, and proxy header
// rewriting. Exposed so tests can drive the API through httptest.
func (s *Server) Handler() http.Handler {
	m := mux.NewRouter()

	// Add CORS
	cors := cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		MaxAge:           31,
		Debug:            false,
	})

	m.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("SFP Collector API\n"))
	}).Methods("GET")

	// Hostnames of every device with at least one stored report
	m.HandleFunc("/api/v1/devices", s.GetDevices).Methods("GET")

	// Latest report for every known device
	m.HandleFunc("/api/v1/sfp", s.GetAllLatest).Methods("GET")

	// Latest report for one device
	m.HandleFunc("/api/v1/sfp/{host}", s.GetLatest).Methods("GET")

	// Report history for one device, newest first
	m.HandleFunc("/api/v1/sfp/{host}/history", s.GetHistory).Methods("GET")

	// Module events, all devices or one device
	m.HandleFunc("/api/v1/events", s.GetEvents).Methods("GET")
	m.HandleFunc("/api/v1/events/{host}", s.GetEvents).Methods("GET")

	return handlers.ProxyHeaders(cors.Handler(m))
}

func (s *Server) startHTTP() error {
	httpServer := &http.Server{
		Addr:              s.httpListenAddr,
		Handler:           s.Handler(),
		ReadTimeout:       (10 * time.Second),
		ReadHeaderTimeout: (8 * time.Second),
		WriteTimeout:      (45 * time.Second),
	}

	// Set up shutdown handler
	go func() {
		<-s.ctx.Done()
		err := httpServer.Shutdown(context.Background())
		if err != nil {
			s.logger.Error("error shutting down HTTP interface",
				slog.String("addr", s.httpListenAddr), slog.Any("error", err))
		}
	}()

	// Start HTTP server
	go func() {
		s.logger.Info("starting HTTP interface", slog.String("addr", s.httpListenAddr))

		// This isn't entirely true and really represents a race condition, but
		// doing this properly is a pain in the neck.
		s.httpStarted.Done()

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.logger.Error("HTTP interface down",
				slog.String("addr", s.httpListenAddr), slog.Any("error", err))
		}
		s.httpStopped.Done()
	}()

	return nil
}

func (s *Server) GetDevices(w http.ResponseWriter, r *http.Request) {
	hostnames, err := s.db.ListHostnames()
	if err != nil {
		s.logger.Error("failed to list devices", slog.Any("error", err))
		http.Error(w, "failed to list devices", http.StatusInternalServerError)
		return
	}
	writeJSON(w, hostnames)
}

func (s *Server) GetAllLatest(w http.ResponseWriter, r *http.Request) {
	hostnames, err := s.db.ListHostnames()
	if err != nil {
		s.logger.Error("failed to list devices", slog.Any("error", err))
		http.Error(w, "failed to list devices", http.StatusInternalServerError)
		return
	}

	reports := make([]models.SFPReport, 0, len(hostnames))
	for _, hostname := range hostnames {
		report, err := s.db.LatestReport(hostname)
		if errors.Is(err, sqlitestore.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to get latest report", slog.Any("error", err))
			http.Error(w, "failed to get reports", http.StatusInternalServerError)
			return
		}
		reports = append(reports, report)
	}
	writeJSON(w, reports)
}

func (s *Server) GetLatest(w http.ResponseWriter, r *http.Request) {
	hostname := mux.Vars(r)["host"]

	report, err := s.db.LatestReport(hostname)
	if errors.Is(err, sqlitestore.ErrNotFound) {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to get latest report", slog.Any("error", err))
		http.Error(w, "failed to get report", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	hostname := mux.Vars(r)["host"]
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	history, err := s.db.ReportHistory(hostname, limit)
	if err != nil {
		s.logger.Error("failed to get report history", slog.Any("error", err))
		http.Error(w, "failed to get history", http.StatusInternalServerError)
		return
	}
	if len(history) == 0 {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	// Optional ?port=N keeps only the matching port in each report.
	if raw := r.URL.Query().Get("port"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid port", http.StatusBadRequest)
			return
		}
		for i := range history {
			history[i].Ports = filterPort(history[i].Ports, port)
		}
	}

	writeJSON(w, history)
}

func filterPort(ports []models.PortRecord, port int) []models.PortRecord {
	filtered := make([]models.PortRecord, 0, 1)
	for _, p := range ports {
		if p.PortIndex == port {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func (s *Server) GetEvents(w http.ResponseWriter, r *http.Request) {
	hostname := mux.Vars(r)["host"]
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	events, err := s.db.ListEvents(hostname, limit)
	if err != nil {
		s.logger.Error("failed to list events", slog.Any("error", err))
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
