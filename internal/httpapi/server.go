package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/service"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/types"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/ttlock"
)

// EventHandler is implemented by service.Engine.
type EventHandler interface {
	HandleLockEvent(ctx context.Context, ev types.RawEvent) (types.HandleResult, error)
}

// CredentialLister is implemented by ttlock.Client.
type CredentialLister interface {
	ListFingerprints(ctx context.Context, lockID string) ([]ttlock.Fingerprint, error)
	ListCards(ctx context.Context, lockID string) ([]ttlock.Card, error)
}

type Dependencies struct {
	Logger *zap.Logger
	Addr   string
	Engine EventHandler

	// Optional.
	Credentials    CredentialLister
	Bridge         http.Handler
	Metrics        http.Handler
	CORSOrigins    []string
	RequestTimeout time.Duration
}

type Server struct {
	httpServer  *http.Server
	logger      *zap.Logger
	router      chi.Router
	engine      EventHandler
	credentials CredentialLister
	timeout     time.Duration
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 15 * time.Second
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	s := &Server{
		logger:      d.Logger,
		router:      r,
		engine:      d.Engine,
		credentials: d.Credentials,
		timeout:     d.RequestTimeout,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/ttlock/callback", s.handleCallback)
	r.Get("/api/locks/{lockId}/credentials", s.handleCredentials)
	if d.Bridge != nil {
		r.Get("/bridge", d.Bridge.ServeHTTP)
	}
	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics.ServeHTTP)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCallback is the vendor webhook.  Any well-formed event gets a 200
// whatever the decision; only a body without a lock id is a 400.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeCallback(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "invalid callback body")
		return
	}

	ev, err := ttlock.EventFromCallback(fields, time.Now())
	switch {
	case errors.Is(err, ttlock.ErrBadRecords):
		s.logger.Warn("callback records ignored", zap.String("device_id", ev.LockID), zap.Error(err))
	case err != nil:
		writeError(w, http.StatusBadRequest, "missing_lock_id", err.Error())
		return
	}

	res, err := s.engine.HandleLockEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, service.ErrMalformedEvent) {
			writeError(w, http.StatusBadRequest, "missing_lock_id", err.Error())
			return
		}
		s.logger.Error("callback error", zap.String("device_id", ev.LockID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	resp := callbackResponseFrom(res)
	if isProtobuf(r) {
		writeProto(w, http.StatusOK, callbackResponseToProto(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type credentialsResponse struct {
	LockID       string               `json:"lockId"`
	Fingerprints []ttlock.Fingerprint `json:"fingerprints"`
	Cards        []ttlock.Card        `json:"cards"`
}

// handleCredentials lists what is enrolled on a lock at the vendor.
func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	lockID := strings.TrimSpace(chi.URLParam(r, "lockId"))
	if lockID == "" {
		writeError(w, http.StatusBadRequest, "missing_lock_id", "lockId is required")
		return
	}
	if s.credentials == nil {
		writeError(w, http.StatusServiceUnavailable, "vendor_not_configured", ttlock.ErrNotConfigured.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	resp := credentialsResponse{LockID: lockID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resp.Fingerprints, err = s.credentials.ListFingerprints(gctx, lockID)
		return err
	})
	g.Go(func() error {
		var err error
		resp.Cards, err = s.credentials.ListCards(gctx, lockID)
		return err
	})
	if err := g.Wait(); err != nil {
		switch {
		case errors.Is(err, ttlock.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "vendor_not_configured", err.Error())
		case errors.Is(err, ttlock.ErrVendor):
			writeError(w, http.StatusBadGateway, "vendor_error", err.Error())
		default:
			s.logger.Warn("credential listing failed", zap.String("device_id", lockID), zap.Error(err))
			writeError(w, http.StatusBadGateway, "upstream_error", "vendor unavailable")
		}
		return
	}
	if resp.Fingerprints == nil {
		resp.Fingerprints = []ttlock.Fingerprint{}
	}
	if resp.Cards == nil {
		resp.Cards = []ttlock.Card{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}
