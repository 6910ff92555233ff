// Package server exposes the library state and the provider store over a
// small JSON API for a presentation layer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/snapetech/nunetv/internal/catalog"
	"github.com/snapetech/nunetv/internal/library"
	"github.com/snapetech/nunetv/internal/metrics"
	"github.com/snapetech/nunetv/internal/providers"
)

// ProviderStore is the provider persistence the API edits.
type ProviderStore interface {
	List(ctx context.Context) ([]catalog.ProviderCredentials, error)
	Get(ctx context.Context, name string) (*catalog.ProviderCredentials, error)
	Save(ctx context.Context, p catalog.ProviderCredentials) error
	Delete(ctx context.Context, name string) error
	SetActive(ctx context.Context, name string) error
	ActiveName(ctx context.Context) (string, error)
	LoadActive(ctx context.Context) (*catalog.ProviderCredentials, error)
}

// ConnectionTester checks a provider without publishing anything.
type ConnectionTester interface {
	TestConnection(ctx context.Context, creds catalog.ProviderCredentials) (bool, error)
}

type Server struct {
	Library *library.State
	Store   ProviderStore
	Tester  ConnectionTester
	Metrics *metrics.Set
	// RefreshTimeout bounds a refresh started from the API. 0 = 5m.
	RefreshTimeout time.Duration

	router *mux.Router
}

// Handler returns the API router, built on first use.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.router = s.routes()
	}
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/favorites/{id}", s.handleToggleFavorite).Methods(http.MethodPost)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/providers", s.handleListProviders).Methods(http.MethodGet)
	api.HandleFunc("/providers/{name}", s.handleSaveProvider).Methods(http.MethodPut)
	api.HandleFunc("/providers/{name}", s.handleDeleteProvider).Methods(http.MethodDelete)
	api.HandleFunc("/providers/{name}/activate", s.handleActivateProvider).Methods(http.MethodPost)
	api.HandleFunc("/providers/{name}/test", s.handleTestProvider).Methods(http.MethodPost)
	r.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Run serves the API on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: logRequests(s.Handler()), ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("api listening on %s", addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("Shutting down api ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("api shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

// ─── Library ─────────────────────────────────────────────────────────────────

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Library.Current())
}

type refreshResponse struct {
	Summary summary `json:"summary"`
	Error   string  `json:"error,omitempty"`
}

type summary struct {
	Provider    string    `json:"provider,omitempty"`
	Placeholder bool      `json:"placeholder"`
	Live        int       `json:"live"`
	Groups      int       `json:"groups"`
	Movies      int       `json:"movies"`
	Series      int       `json:"series"`
	EPGChannels int       `json:"epg_channels"`
	Favorites   int       `json:"favorites"`
	GeneratedAt time.Time `json:"generated_at"`
}

func summarize(snap *catalog.Snapshot) summary {
	return summary{
		Provider:    snap.Provider,
		Placeholder: snap.Placeholder,
		Live:        len(snap.LiveChannels()),
		Groups:      len(snap.LiveGroups),
		Movies:      len(snap.Movies),
		Series:      len(snap.Series),
		EPGChannels: len(snap.EPG),
		Favorites:   len(snap.Favorites),
		GeneratedAt: snap.GeneratedAt,
	}
}

// handleRefresh runs one load cycle for the active provider. The cycle is
// detached from the request so a client hanging up does not cancel it.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	timeout := s.RefreshTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()
	snap, err := s.Library.RefreshActive(ctx, s.Store)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, refreshResponse{Summary: summarize(snap), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Summary: summarize(snap)})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, err := s.Library.ToggleFavorite(id)
	if errors.Is(err, library.ErrUnknownChannel) {
		writeError(w, http.StatusNotFound, "unknown channel "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap.Favorites)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	results := s.Library.Search(r.URL.Query().Get("q"))
	if results == nil {
		results = []catalog.Channel{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		library.Status
		Summary summary `json:"summary"`
	}{s.Library.Status(), summarize(s.Library.Current())})
}

// handleHealth returns 200 once a provider snapshot is published, 503 while
// the placeholder is showing.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.Library.Current()
	if snap.Placeholder {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":     "placeholder",
			"last_error": s.Library.LastError(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"provider":     snap.Provider,
		"channels":     len(snap.AllChannels()),
		"last_refresh": snap.GeneratedAt.Format(time.RFC3339),
	})
}

// ─── Providers ───────────────────────────────────────────────────────────────

type providerList struct {
	Active    string                        `json:"active,omitempty"`
	Providers []catalog.ProviderCredentials `json:"providers"`
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	list, err := s.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	active, err := s.Store.ActiveName(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := providerList{Active: active, Providers: make([]catalog.ProviderCredentials, 0, len(list))}
	for _, p := range list {
		out.Providers = append(out.Providers, p.Redacted())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveProvider(w http.ResponseWriter, r *http.Request) {
	var p catalog.ProviderCredentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid provider: "+err.Error())
		return
	}
	p.Name = mux.Vars(r)["name"]
	if err := providers.Validate(p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Store.Save(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p.Redacted())
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Delete(r.Context(), mux.Vars(r)["name"]); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleActivateProvider(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	err := s.Store.SetActive(r.Context(), name)
	if errors.Is(err, providers.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown provider "+name)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type testResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, err := s.Store.Get(r.Context(), name)
	if errors.Is(err, providers.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown provider "+name)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok, err := s.Tester.TestConnection(r.Context(), *p)
	switch {
	case err != nil:
		writeJSON(w, http.StatusOK, testResponse{Error: err.Error()})
	case !ok:
		writeJSON(w, http.StatusOK, testResponse{Error: "No streams returned"})
	default:
		writeJSON(w, http.StatusOK, testResponse{OK: true})
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf("http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}
