package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/franckalain/eatproof/internal/database"
	"github.com/franckalain/eatproof/internal/models"
	"github.com/franckalain/eatproof/internal/reference"
	"github.com/franckalain/eatproof/internal/scoring"
	"go.uber.org/zap"
)

// Server wires the scoring service, the store and the reference tables
// behind the HTTP and websocket endpoints the scanning client talks to.
type Server struct {
	db         database.DB
	scorer     *scoring.Service
	tables     *reference.Provider
	log        *zap.Logger
	sessionTTL time.Duration
}

// New builds a server. sessionTTL bounds the lifetime of issued bearer
// tokens.
func New(db database.DB, scorer *scoring.Service, tables *reference.Provider, sessionTTL time.Duration, log *zap.Logger) *Server {
	return &Server{
		db:         db,
		scorer:     scorer,
		tables:     tables,
		log:        log,
		sessionTTL: sessionTTL,
	}
}

// Handler returns the full route table. Split out from Start so tests can
// drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /scan/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /scan/history", s.handleHistory)
	mux.HandleFunc("GET /health", s.handleGetHealthProfile)
	mux.HandleFunc("POST /health", s.handleUpdateHealthProfile)
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/me", s.handleMe)
	mux.HandleFunc("GET /recalls", s.handleRecalls)
	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return s.withCORS(s.withLogging(mux))
}

// Start serves until SIGINT/SIGTERM, then drains connections.
func (s *Server) Start(port string) error {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.Handler(),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
	}

	s.log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			// The recorder does not implement http.Hijacker, which
			// the websocket upgrade needs.
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

// currentUser resolves the bearer token on the request, returning nil for
// anonymous callers. Only storage failures produce an error.
func (s *Server) currentUser(r *http.Request) (*models.User, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, nil
	}
	return s.db.UserByToken(r.Context(), strings.TrimSpace(token))
}

// requireUser is currentUser plus an explicit unauthorized failure. Missing
// auth is a visible error variant here, never a silent fallback to demo data.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) *models.User {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, scoring.KindInternal, "failed to resolve session")
		return nil
	}
	if user == nil {
		s.writeError(w, http.StatusUnauthorized, scoring.KindUnauthorized, "missing or invalid bearer token")
		return nil
	}
	return user
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

type errorBody struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind scoring.Kind, msg string) {
	s.writeJSON(w, status, errorBody{ErrorKind: string(kind), Message: msg})
}

func statusForKind(kind scoring.Kind) int {
	switch kind {
	case scoring.KindInvalidRequest:
		return http.StatusBadRequest
	case scoring.KindUnauthorized:
		return http.StatusUnauthorized
	case scoring.KindNotFound:
		return http.StatusNotFound
	case scoring.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
