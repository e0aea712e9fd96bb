// Package status serves the outcome of recent runs over HTTP.
package status

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/fluxprep/internal/storage"
	"github.com/chrissnell/fluxprep/pkg/responseformat"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HealthFunc reports the health of the output sinks
type HealthFunc func(ctx context.Context) map[string]storage.HealthData

// Controller is the status HTTP server
type Controller struct {
	Server    http.Server
	store     *Store
	health    HealthFunc
	formatter *responseformat.Formatter
	logger    *zap.SugaredLogger
}

// NewController creates a status server listening on listenAddr:port
func NewController(listenAddr string, port int, store *Store, health HealthFunc, logger *zap.SugaredLogger) *Controller {
	if listenAddr == "" {
		logger.Info("status.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		listenAddr = "0.0.0.0"
	}

	c := &Controller{
		store:     store,
		health:    health,
		formatter: responseformat.NewFormatter(),
		logger:    logger,
	}
	c.Server.Addr = fmt.Sprintf("%v:%v", listenAddr, port)
	c.Server.Handler = c.Router()
	c.Server.ReadHeaderTimeout = 10 * time.Second
	return c
}

// Router returns the status API routes
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/runs/latest", c.GetLatestRun).Methods(http.MethodGet)
	router.HandleFunc("/days/{date}", c.GetDay).Methods(http.MethodGet)
	router.HandleFunc("/healthz", c.GetHealth).Methods(http.MethodGet)
	return router
}

// StartController serves until ctx is cancelled
func (c *Controller) StartController(ctx context.Context, wg *sync.WaitGroup) {
	c.logger.Infof("starting status server on %s...", c.Server.Addr)
	wg.Add(1)

	go func() {
		defer wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			c.logger.Errorf("status server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		c.logger.Info("shutting down the status server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()
}
