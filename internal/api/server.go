// Package api exposes the synchronization service over HTTP: trigger a
// pass, send a test reply, and read back stored conversations.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/guestsync/internal/store"
	"github.com/guestsync/internal/syncer"
)

// Server represents the API server
type Server struct {
	echo         *echo.Echo
	port         int
	store        *store.Store
	orchestrator *syncer.Orchestrator
}

// NewServer creates a new API server
func NewServer(port int, st *store.Store, orch *syncer.Orchestrator) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:         e,
		port:         port,
		store:        st,
		orchestrator: orch,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	v1.POST("/hosts/:id/sync", s.syncHost)
	v1.GET("/conversations", s.listConversations)
	v1.GET("/conversations/:id/messages", s.listMessages)
	v1.POST("/conversations/:id/test-reply", s.sendTestReply)
}

// Start begins the API server and blocks until interrupted.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router, used by handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) syncHost(c echo.Context) error {
	hostID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid host id",
		})
	}

	report := s.orchestrator.SyncHost(c.Request().Context(), hostID)
	status := http.StatusOK
	if report.ListingsFound == 0 && len(report.Errors) > 0 {
		status = http.StatusBadGateway
	}
	return c.JSON(status, report)
}

func (s *Server) listConversations(c echo.Context) error {
	hostID, err := strconv.ParseInt(c.QueryParam("host_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "host_id query parameter is required",
		})
	}

	conversations, err := s.store.ListConversationsByHost(c.Request().Context(), hostID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversations": conversations,
	})
}

func (s *Server) listMessages(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid conversation id",
		})
	}

	conv, err := s.store.GetConversation(c.Request().Context(), conversationID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	if conv == nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "conversation not found",
		})
	}

	messages, err := s.store.ListMessages(c.Request().Context(), conversationID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}

type testReplyRequest struct {
	Text string `json:"text"`
}

func (s *Server) sendTestReply(c echo.Context) error {
	conversationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid conversation id",
		})
	}

	var req testReplyRequest
	if err := c.Bind(&req); err != nil || req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "a non-empty text field is required",
		})
	}

	result := s.orchestrator.SendTestReply(c.Request().Context(), conversationID, req.Text)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	return c.JSON(status, result)
}
