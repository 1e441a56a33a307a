package verify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ad/script-agent-bot/internal/domain"
	"github.com/ad/script-agent-bot/internal/storage"

	"github.com/gin-gonic/gin"
)

// submitRequest is the payload the verification website posts when a
// user submits their username.
type submitRequest struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
}

type submitResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Server accepts verification submissions from the website and records
// them as pending requests for the chat-side handshake.
type Server struct {
	pending *storage.PendingStore
	logger  domain.Logger
	srv     *http.Server
}

// NewServer creates the verification HTTP server on addr.
func NewServer(addr string, pending *storage.PendingStore, log domain.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		pending: pending,
		logger:  log,
	}
	router.POST("/api/verify", s.handleSubmit)
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, submitResponse{
			Status:  "ERROR",
			Message: "invalid request body",
		})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Username == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, submitResponse{
			Status:  "ERROR",
			Message: "username and user_id are required",
		})
		return
	}

	if err := s.pending.Put(req.UserID, req.Username, time.Now()); err != nil {
		s.logger.Error("failed to store verification submission",
			"user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, submitResponse{
			Status:  "ERROR",
			Message: "could not store submission",
		})
		return
	}

	s.logger.Info("verification submission received",
		"user_id", req.UserID, "username", req.Username)
	c.JSON(http.StatusOK, submitResponse{
		Status:  "SUCCESS",
		Message: "submission received, finish verification in chat",
	})
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("verification server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
