// Package httpapi exposes a read-only administrative REST surface over the
// broker's live state: health, connected clients, channels, and basic
// metrics. It never accepts writes — all mutation of the message plane
// happens exclusively over the framed wire protocol.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Broker is the read-only view the HTTP surface is allowed to query. Package
// main's brokerView adapter implements it over the Registry, so this package
// never imports package main.
type Broker interface {
	Clients() []ClientView
	Channels() []ChannelView
	ChannelSubscribers(channelGUID string) ([]ClientView, bool)
}

// ClientView is the JSON shape of one connected client.
type ClientView struct {
	GUID       string    `json:"guid"`
	IP         string    `json:"ip"`
	Port       int       `json:"port"`
	LoggedIn   bool      `json:"logged_in"`
	CreatedUTC time.Time `json:"created_utc"`
}

// ChannelView is the JSON shape of one channel. Private is 0 (public) or 1
// (private), mirroring the broker's own Channel.Private flag.
type ChannelView struct {
	GUID            string    `json:"guid"`
	Name            string    `json:"name"`
	OwnerGUID       string    `json:"owner_guid"`
	Private         int       `json:"private"`
	SubscriberCount int       `json:"subscriber_count"`
	CreatedUTC      time.Time `json:"created_utc"`
}

// adminTokenHeader carries the admin token on requests that want to see
// private channels in GET /api/channels.
const adminTokenHeader = "X-Admin-Token"

// Server is the Echo application serving the admin API.
type Server struct {
	echo       *echo.Echo
	broker     Broker
	version    string
	started    time.Time
	adminToken string
}

// New constructs an Echo app with the admin routes registered. adminToken
// gates visibility into private channels on GET /api/channels: requests
// without a matching X-Admin-Token header only ever see public channels. An
// empty adminToken means private channels are never exposed over this API.
func New(broker Broker, version string, adminToken string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, broker: broker, version: version, started: time.Now(), adminToken: adminToken}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/version", s.handleVersion)
	s.echo.GET("/api/clients", s.handleClients)
	s.echo.GET("/api/channels", s.handleChannels)
	s.echo.GET("/api/channels/:guid/subscribers", s.handleChannelSubscribers)
	s.echo.GET("/api/metrics", s.handleMetrics)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down admin http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: len(s.broker.Clients()),
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleClients(c echo.Context) error {
	clients := s.broker.Clients()
	if clients == nil {
		clients = []ClientView{}
	}
	return c.JSON(http.StatusOK, clients)
}

// hasAdminToken reports whether the request presented a matching admin
// token. With no adminToken configured, private channels are never shown.
func (s *Server) hasAdminToken(c echo.Context) bool {
	return s.adminToken != "" && c.Request().Header.Get(adminTokenHeader) == s.adminToken
}

func (s *Server) handleChannels(c echo.Context) error {
	all := s.broker.Channels()
	admitted := s.hasAdminToken(c)

	channels := make([]ChannelView, 0, len(all))
	for _, ch := range all {
		if ch.Private != 0 && !admitted {
			continue
		}
		channels = append(channels, ch)
	}
	return c.JSON(http.StatusOK, channels)
}

func (s *Server) handleChannelSubscribers(c echo.Context) error {
	guid := c.Param("guid")
	subs, ok := s.broker.ChannelSubscribers(guid)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "channel not found")
	}
	if subs == nil {
		subs = []ClientView{}
	}
	return c.JSON(http.StatusOK, subs)
}

type metricsResponse struct {
	Clients     int           `json:"clients"`
	Channels    int           `json:"channels"`
	UptimeSecs  float64       `json:"uptime_seconds"`
}

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, metricsResponse{
		Clients:    len(s.broker.Clients()),
		Channels:   len(s.broker.Channels()),
		UptimeSecs: time.Since(s.started).Seconds(),
	})
}
