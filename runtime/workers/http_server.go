package workers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 5 * time.Second

// HttpServerWorker serves the debug endpoints (metrics, health, feed dump).
type HttpServerWorker struct {
	log    *slog.Logger
	server *http.Server
}

func NewHttpServerWorker(log *slog.Logger, addr string, handler http.Handler) *HttpServerWorker {
	return &HttpServerWorker{
		log: log,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (w *HttpServerWorker) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting debug HTTP server", "address", w.server.Addr)
		errChan <- w.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
