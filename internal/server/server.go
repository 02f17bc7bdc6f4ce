// Package server provides the HTTP API for lexragd.
//
// Every API route is tenant-scoped: the X-Tenant-ID header is required
// and becomes the tenant context for the request. A missing header is
// rejected before any handler runs - fail closed, never an empty
// result.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/casefile-labs/lexrag/internal/config"
	"github.com/casefile-labs/lexrag/internal/crypto"
	"github.com/casefile-labs/lexrag/internal/ingest"
	"github.com/casefile-labs/lexrag/internal/retrieval"
	"github.com/casefile-labs/lexrag/internal/tenant"
)

// HeaderTenantID carries the tenant identifier on every API request.
const HeaderTenantID = "X-Tenant-ID"

// HeaderUserID optionally identifies the requesting user for
// personalized ranking.
const HeaderUserID = "X-User-ID"

// Server provides HTTP endpoints for lexragd.
type Server struct {
	echo      *echo.Echo
	ingest    *ingest.Service
	retrieval *retrieval.Service
	crypto    *crypto.Service
	logger    *zap.Logger
	config    config.ServerConfig
}

// NewServer creates the HTTP server.
func NewServer(cfg config.ServerConfig, ing *ingest.Service, ret *retrieval.Service, enc *crypto.Service, logger *zap.Logger) (*Server, error) {
	if ing == nil || ret == nil {
		return nil, fmt.Errorf("ingest and retrieval services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		ingest:    ing,
		retrieval: ret,
		crypto:    enc,
		logger:    logger.Named("server"),
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1", s.tenantMiddleware)
	v1.POST("/documents/:id/index", s.handleIndexDocument)
	v1.DELETE("/documents/:id/index", s.handleDeleteDocumentIndex)
	v1.POST("/retrieve", s.handleRetrieve)
	v1.POST("/keys/invalidate", s.handleInvalidateKeys)
}

// tenantMiddleware extracts tenant identity from request headers into
// the request context. Requests without a tenant are rejected.
func (s *Server) tenantMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID := c.Request().Header.Get(HeaderTenantID)
		if tenantID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "X-Tenant-ID header is required")
		}

		info := &tenant.Info{
			TenantID: tenantID,
			UserID:   c.Request().Header.Get(HeaderUserID),
		}
		ctx := tenant.NewContext(c.Request().Context(), info)
		c.SetRequest(c.Request().WithContext(ctx))

		return next(c)
	}
}

// MatterRequest carries inline matter context on an index request.
type MatterRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	PracticeArea string `json:"practice_area"`
	Jurisdiction string `json:"jurisdiction"`
}

// IndexRequest is the request body for POST /api/v1/documents/:id/index.
type IndexRequest struct {
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	CreatedAt time.Time      `json:"created_at"`
	Author    string         `json:"author"`
	MatterID  string         `json:"matter_id"`
	Matter    *MatterRequest `json:"matter,omitempty"`
}

// RetrieveRequest is the request body for POST /api/v1/retrieve.
type RetrieveRequest struct {
	Query               string                 `json:"query"`
	Limit               int                    `json:"limit"`
	SimilarityThreshold float64                `json:"similarity_threshold"`
	DocumentTypes       []string               `json:"document_types"`
	MatterID            string                 `json:"matter_id"`
	Jurisdiction        string                 `json:"jurisdiction"`
	Sources             *retrieval.SourceFlags `json:"sources,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// InvalidateResponse is the response body for POST /api/v1/keys/invalidate.
type InvalidateResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleIndexDocument runs the ingest pipeline for one document.
func (s *Server) handleIndexDocument(c echo.Context) error {
	var req IndexRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid index request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	doc := ingest.Document{
		ID:        c.Param("id"),
		Name:      req.Name,
		Type:      req.Type,
		Text:      req.Text,
		CreatedAt: req.CreatedAt,
		Author:    req.Author,
		MatterID:  req.MatterID,
	}

	var matter *ingest.Matter
	if req.Matter != nil {
		matter = &ingest.Matter{
			ID:           req.Matter.ID,
			Name:         req.Matter.Name,
			Type:         req.Matter.Type,
			PracticeArea: req.Matter.PracticeArea,
			Jurisdiction: req.Matter.Jurisdiction,
		}
		if doc.MatterID == "" {
			doc.MatterID = req.Matter.ID
		}
	}

	result, err := s.ingest.IndexDocument(c.Request().Context(), doc, matter)
	if err != nil {
		return s.serviceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// handleDeleteDocumentIndex removes every index artifact for a document.
func (s *Server) handleDeleteDocumentIndex(c echo.Context) error {
	documentID := c.Param("id")
	if err := s.ingest.DeleteDocumentIndex(c.Request().Context(), documentID); err != nil {
		return s.serviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleRetrieve runs a hybrid retrieval query.
func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid retrieve request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	info, err := tenant.FromContext(c.Request().Context())
	if err != nil {
		return s.serviceError(c, err)
	}

	resp, err := s.retrieval.Retrieve(c.Request().Context(), req.Query, retrieval.Options{
		Limit:               req.Limit,
		SimilarityThreshold: req.SimilarityThreshold,
		DocumentTypes:       req.DocumentTypes,
		MatterID:            req.MatterID,
		Jurisdiction:        req.Jurisdiction,
		UserID:              info.UserID,
		Sources:             req.Sources,
	})
	if err != nil {
		return s.serviceError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// handleInvalidateKeys drops the calling tenant's derived key and
// cached decrypted vectors. Used on key rotation and offboarding.
func (s *Server) handleInvalidateKeys(c echo.Context) error {
	info, err := tenant.FromContext(c.Request().Context())
	if err != nil {
		return s.serviceError(c, err)
	}

	if s.crypto == nil {
		return echo.NewHTTPError(http.StatusConflict, "encryption is not enabled")
	}

	s.crypto.InvalidateTenant(info.TenantID)
	s.logger.Info("tenant keys invalidated", zap.String("tenant_id", info.TenantID))

	return c.JSON(http.StatusOK, InvalidateResponse{Status: "invalidated"})
}

// serviceError maps service errors onto HTTP status codes.
func (s *Server) serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, tenant.ErrMissingTenant), errors.Is(err, tenant.ErrInvalidTenant):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ingest.ErrEmptyDocument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("uri", c.Request().RequestURI), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
