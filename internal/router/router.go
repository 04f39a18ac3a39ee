package router // package router defines how HTTP routes are registered for the API

import (
	"net/http" // http.Handler for the metrics endpoint

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/seat-occupancy/internal/handler" // handlers that implement the endpoints
)

// RegisterRoutes registers the unauthenticated operational endpoints.
// metrics may be nil, in which case /metrics is not exposed.
func RegisterRoutes(e *echo.Echo, metrics http.Handler) {
	// Liveness for load balancers and probes.
	e.GET("/healthz", handler.Health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterSessions registers the monitoring session API under
// /v1/sessions.  ingest wraps the frame endpoint only (rate limiting);
// the operator endpoints are not limited.
func RegisterSessions(e *echo.Echo, h *handler.SessionHandler, ingest ...echo.MiddlewareFunc) {
	g := e.Group("/v1/sessions")
	g.POST("", h.CreateSession)
	g.GET("/:id", h.GetSession)
	g.DELETE("/:id", h.EndSession)

	// Lifecycle transitions
	g.POST("/:id/start", h.StartSession)
	g.POST("/:id/stop", h.StopSession)
	g.POST("/:id/reset", h.ResetSession)

	// Seat configuration
	g.PUT("/:id/seats/:label", h.UpsertSeat)
	g.DELETE("/:id/seats/:label", h.DeleteSeat)

	g.POST("/:id/frames", h.SubmitFrame, ingest...)
	g.GET("/:id/report.csv", h.ReportCSV)
}

// RegisterReports registers the archived report endpoints.  cache wraps
// both routes; archived reports never change once written.
func RegisterReports(e *echo.Echo, h *handler.ReportHandler, cache ...echo.MiddlewareFunc) {
	g := e.Group("/v1/reports", cache...)
	g.GET("", h.ListReports)
	g.GET("/:id", h.GetReport)
}
