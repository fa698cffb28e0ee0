// ABOUTME: gRPC interceptors for authenticating requests with JWT bearer tokens
// ABOUTME: Reads the authorization metadata and attaches the verified Identity to the call context

package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// PublicMethodPrefixes are gRPC method prefixes that need no identity.
var PublicMethodPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

func isPublicMethod(fullMethod string) bool {
	for _, p := range PublicMethodPrefixes {
		if strings.HasPrefix(fullMethod, p) {
			return true
		}
	}
	return false
}

// grpcAuthenticator turns call metadata into an authenticated context.
type grpcAuthenticator struct {
	tokens TokenVerifier
	logger *slog.Logger
}

// authenticate returns ctx unchanged for public methods and a context
// carrying the caller's Identity otherwise.
func (a grpcAuthenticator) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	if isPublicMethod(fullMethod) {
		return ctx, nil
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
	}

	token, problem := extractBearerToken(header)
	if problem != "" {
		a.reject(ctx, fullMethod, problem)
		return nil, status.Error(codes.Unauthenticated, problem)
	}

	id, err := a.tokens.Verify(token)
	if err != nil {
		a.reject(ctx, fullMethod, err.Error())
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return WithIdentity(ctx, id), nil
}

func (a grpcAuthenticator) reject(ctx context.Context, method, reason string) {
	if a.logger == nil {
		return
	}
	attrs := []any{"method", method, "reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs = append(attrs, "peer_addr", p.Addr.String())
	}
	a.logger.Warn("rejected unauthenticated gRPC call", attrs...)
}

// UnaryInterceptor authenticates unary calls. Public methods pass through
// without an identity.
func UnaryInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.UnaryServerInterceptor {
	a := grpcAuthenticator{tokens: tokens, logger: logger}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := a.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor authenticates streaming calls. Public methods pass
// through without an identity.
func StreamInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.StreamServerInterceptor {
	a := grpcAuthenticator{tokens: tokens, logger: logger}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := a.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, identityStream{ServerStream: ss, ctx: ctx})
	}
}

// identityStream overrides the stream context with the authenticated one.
type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s identityStream) Context() context.Context { return s.ctx }
