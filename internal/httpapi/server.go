package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/hub"
	"github.com/Krishnachaitanyakoppaku/LAN-Only-online-meet/internal/protocol"
)

// Server exposes read-only session state and a couple of host-side actions
// over HTTP. It runs on its own TCP port, apart from the control channel.
type Server struct {
	hub    *hub.Hub
	echo   *echo.Echo
	logger *log.Logger
}

// New constructs the API server and registers all routes.
func New(h *hub.Hub, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("api request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{hub: h, echo: e, logger: logger}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/state", s.handleState)
	s.echo.GET("/api/files", s.handleFiles)
	s.echo.POST("/api/scan", s.handleScan)
	s.echo.POST("/api/broadcast", s.handleBroadcast)
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server error", "err", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		s.logger.Warn("api shutdown", "err", err)
	}
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	Participants int    `json:"participants"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:       "ok",
		Participants: s.hub.ClientCount(),
	})
}

// StateResponse is the payload for GET /api/state.
type StateResponse struct {
	Participants []protocol.ParticipantInfo `json:"participants"`
	HostID       *int                       `json:"host_id,omitempty"`
	PresenterID  *int                       `json:"presenter_id,omitempty"`
}

func (s *Server) handleState(c echo.Context) error {
	resp := StateResponse{Participants: []protocol.ParticipantInfo{}}
	var hostID, presenterID *int
	for _, p := range s.hub.Roster() {
		info := p.Info()
		resp.Participants = append(resp.Participants, info)
		if info.IsHost {
			id := p.ID
			hostID = &id
		}
		if info.IsPresenter {
			id := p.ID
			presenterID = &id
		}
	}
	resp.HostID = hostID
	resp.PresenterID = presenterID
	return c.JSON(http.StatusOK, resp)
}

// FilesResponse is the payload for GET /api/files.
type FilesResponse struct {
	Files map[string]protocol.FileEntry `json:"files"`
}

func (s *Server) handleFiles(c echo.Context) error {
	return c.JSON(http.StatusOK, FilesResponse{Files: s.hub.Files()})
}

// ScanResponse is the payload for POST /api/scan.
type ScanResponse struct {
	Added int `json:"added"`
}

func (s *Server) handleScan(c echo.Context) error {
	added, err := s.hub.ScanSpool()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ScanResponse{Added: added})
}

// BroadcastRequest is the body for POST /api/broadcast.
type BroadcastRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleBroadcast(c echo.Context) error {
	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text must not be empty")
	}
	if len(req.Text) > protocol.MaxChatLength {
		return echo.NewHTTPError(http.StatusBadRequest, "text too long")
	}
	if err := s.hub.HostChat(req.Text); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
