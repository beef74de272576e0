package api

import (
	"context"
	"time"

	"VolPull/internal/domain/models"
	"VolPull/internal/usecase"
	xhttp "VolPull/pkg/http"
	xlogger "VolPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HealthChecker is satisfied by every store backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// IndexEchoHandler serves stored index values.
type IndexEchoHandler struct {
	logger *xlogger.Logger
	query  *usecase.IndexQuery
	health HealthChecker
}

func NewIndexEchoHandler(logger *xlogger.Logger, query *usecase.IndexQuery, health HealthChecker) *IndexEchoHandler {
	return &IndexEchoHandler{logger: logger, query: query, health: health}
}

func (h *IndexEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/index", h.Index)
}

// Index handles GET /api/index?symbol=SPX&index_type=VIX&from=&to=&limit=.
func (h *IndexEchoHandler) Index(c echo.Context) error {
	req := &models.IndexQueryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.query.Find(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("index query failed",
			xlogger.String("symbol", req.Symbol),
			xlogger.String("index_type", req.IndexType),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("index query failed").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

// Health reports whether the backing store answers.
func (h *IndexEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()
	if err := h.health.Health(ctx); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
