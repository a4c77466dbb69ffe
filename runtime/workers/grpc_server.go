package workers

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
)

// GrpcServerWorker serves gRPC on the listener until its context is canceled,
// then lets active calls finish.
type GrpcServerWorker struct {
	log      *slog.Logger
	server   *grpc.Server
	listener net.Listener
}

func NewGrpcServerWorker(log *slog.Logger, server *grpc.Server, listener net.Listener) *GrpcServerWorker {
	return &GrpcServerWorker{log: log, server: server, listener: listener}
}

func (w *GrpcServerWorker) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC server", "address", w.listener.Addr().String())
		for serviceName := range w.server.GetServiceInfo() {
			w.log.Debug("gRPC exposed service", "name", serviceName)
		}
		errChan <- w.server.Serve(w.listener)
	}()

	select {
	case <-ctx.Done():
		w.log.Info("Stopping gRPC server gracefully")
		w.server.GracefulStop()
		return nil
	case err := <-errChan:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}
