// Package health реализует gRPC-сервер стандартного протокола grpc.health.v1.
//
// Помимо общего статуса процесса сервер публикует статус сервиса UpstreamService,
// который отражает состояние автомата защиты вызовов к AI-сервису: при OPEN
// сервис объявляется NOT_SERVING, чтобы балансировщик мог увести трафик.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/magabrotheeeer/manuscript-editor/internal/lib/breaker"
	"github.com/magabrotheeeer/manuscript-editor/internal/lib/sl"
)

// UpstreamService — имя сервиса, статус которого зависит от автомата защиты.
const UpstreamService = "upstream-ai"

// Server — gRPC-сервер проверки здоровья.
type Server struct {
	address string
	log     *slog.Logger
	grpc    *grpc.Server
	health  *health.Server
}

// New создаёт сервер. Изначально и процесс, и UpstreamService объявлены SERVING.
func New(address string, log *slog.Logger) *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(UpstreamService, healthpb.HealthCheckResponse_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{
		address: address,
		log:     log.With(slog.String("component", "grpc_health")),
		grpc:    srv,
		health:  hs,
	}
}

// SetUpstreamState переводит статус UpstreamService в соответствие с состоянием автомата.
// HALF_OPEN считается SERVING: пробный запрос должен иметь возможность пройти.
func (s *Server) SetUpstreamState(state breaker.State) {
	status := healthpb.HealthCheckResponse_SERVING
	if state == breaker.StateOpen {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(UpstreamService, status)
}

// Serve обслуживает соединения на lis до остановки сервера.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Run слушает адрес и останавливает сервер при отмене ctx.
func (s *Server) Run(ctx context.Context) error {
	const op = "health.Run"

	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info("stopping grpc health server")
		s.Stop()
	}()

	s.log.Info("starting grpc health server", slog.String("address", s.address))
	if err = s.grpc.Serve(lis); err != nil {
		s.log.Error("grpc health server failed", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop объявляет все сервисы NOT_SERVING и корректно останавливает сервер.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
