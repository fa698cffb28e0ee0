// ABOUTME: gRPC server construction with keepalive, auth interceptors, health and reflection
// ABOUTME: The health service reports SERVING only while the gateway is running

package gateway

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/voyengo/voyengo/internal/auth"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "voyengo.Gateway"

// newGRPCServer builds the gRPC server and registers health and reflection.
// Both registered services are on auth.PublicMethodPrefixes, so the auth
// interceptors let every current call through without a token. They guard
// any gateway service registered on this server later.
func newGRPCServer(tokens auth.TokenVerifier, logger *slog.Logger) (*grpc.Server, *health.Server) {
	grpcLogger := logger.With("component", "grpc")

	// Send pings every 15s and fail if no response within 5s.
	// Permit clients to ping as often as every 5s.
	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			unaryLoggingInterceptor(grpcLogger),
			auth.UnaryInterceptor(tokens, grpcLogger),
		),
		grpc.ChainStreamInterceptor(
			auth.StreamInterceptor(tokens, grpcLogger),
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, hs
}

// unaryLoggingInterceptor logs each unary call with its status code and duration.
func unaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// setServing flips the health status for both the overall server and ServiceName.
func (g *Gateway) setServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	g.healthServer.SetServingStatus("", st)
	g.healthServer.SetServingStatus(ServiceName, st)
}
