package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okarpov/lingohist/internal/logging"
)

// NewRouter wires the API routes. Auth endpoints and the connectivity probe
// are public; everything under /api/history requires a bearer token.
func NewRouter(h *Handler, validator TokenValidator) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/ping", h.ping)
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)

	history := api.Group("/history")
	history.Use(AuthMiddleware(validator))
	history.GET("", h.queryHistory)
	history.GET("/:id", h.getDocument)
	history.PUT("/:id", h.putDocument)
	history.DELETE("/:id", h.deleteDocument)

	return router
}

// Server runs the API over net/http with graceful shutdown.
type Server struct {
	addr   string
	router *gin.Engine
	log    logging.Logger
}

func NewServer(addr string, router *gin.Engine, log logging.Logger) *Server {
	return &Server{addr: addr, router: router, log: log}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info(shutdownCtx, "http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
