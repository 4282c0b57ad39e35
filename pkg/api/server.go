package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rmax-ai/facetgraph/pkg/engine"
	apperrors "github.com/rmax-ai/facetgraph/pkg/errors"
	"github.com/rmax-ai/facetgraph/pkg/graph"
	"github.com/rmax-ai/facetgraph/pkg/store"
)

// GraphService is the part of the engine the API serves.
type GraphService interface {
	BuildGraph(ctx context.Context, req engine.BuildRequest) (*engine.BuildResult, error)
	TrimGraph(ctx context.Context, req engine.TrimRequest) (*graph.View, error)
	GetCachedGraph(ctx context.Context, sessionID string, t graph.GraphType) (*graph.View, error)
	Snapshot(ctx context.Context, sessionID string) (*engine.Snapshot, error)
	GetHistory(ctx context.Context, studyID string) ([]*store.HistoryEntry, error)
	AddComment(ctx context.Context, studyID, entryID, author, body string) (*store.Comment, error)
	DeleteHistory(ctx context.Context, studyID, entryID string) error
	RestoreEntry(ctx context.Context, studyID, entryID, sessionID string) (*graph.View, error)
}

var _ GraphService = (*engine.Engine)(nil)

// Server is the HTTP front of the graph engine.
type Server struct {
	engine   GraphService
	logger   *zap.Logger
	validate *validator.Validate
	router   chi.Router
	server   *http.Server

	tlsCertFile string
	tlsKeyFile  string
}

// NewServer creates a new API server instance
func NewServer(svc GraphService, logger *zap.Logger, addr string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   svc,
		logger:   logger,
		validate: newValidator(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withLogging)
	r.Use(s.withRecovery)
	r.Use(withSecureHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, apperrors.NotFound("ROUTE_NOT_FOUND", "no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusMethodNotAllowed, ErrorResponse{
			Error:   "method_not_allowed",
			Kind:    string(apperrors.KindValidation),
			Message: r.Method + " is not allowed on " + r.URL.Path,
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", handleHealth)
		r.Post("/graphs", s.handleBuildGraph)
		r.Post("/graphs/trim", s.handleTrimGraph)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/graph", s.handleGetGraph)
			r.Get("/reports", s.handleReports)
		})

		r.Route("/studies/{studyID}/history", func(r chi.Router) {
			r.Get("/", s.handleHistory)
			r.Delete("/{entryID}", s.handleDeleteHistory)
			r.Post("/{entryID}/comments", s.handleAddComment)
			r.Post("/{entryID}/restore", s.handleRestore)
		})
	})
	s.router = r

	// Use default port if addr is empty
	if addr == "" {
		addr = ":8090"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetTLS configures the server to use TLS
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCertFile = certFile
	s.tlsKeyFile = keyFile
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	var err error
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("server_starting_tls", zap.String("addr", s.server.Addr))
		err = s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	} else {
		s.logger.Info("server_starting", zap.String("addr", s.server.Addr))
		err = s.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed_to_encode_response",
			zap.String("trace_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
}

// writeError maps err to its status. Internal errors are logged and their message withheld.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	resp := ErrorResponse{
		Error:   "internal_error",
		Kind:    string(apperrors.KindInternal),
		Message: "internal server error",
	}
	var de *apperrors.DomainError
	if errors.As(err, &de) && de.Kind != apperrors.KindInternal {
		resp = ErrorResponse{Error: de.Code, Kind: string(de.Kind), Message: de.Message, Details: de.Details}
	} else {
		s.logger.Error("request_failed",
			zap.String("trace_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	s.writeJSON(w, r, status, resp)
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Validation("INVALID_JSON_BODY", "invalid JSON body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return apperrors.Validation("INVALID_REQUEST", "%s", formatValidationError(err))
	}
	return nil
}
