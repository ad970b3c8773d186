package keycloak

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// metadataAuthorization is the gRPC metadata key carrying the bearer
// token. gRPC metadata keys are lowercase by convention.
const metadataAuthorization = "authorization"

// UnaryServerInterceptor returns a gRPC unary server interceptor that
// authenticates requests against the validator.
//
// The interceptor performs the following steps:
//  1. Extracts the "authorization" metadata value (bearer token)
//  2. Validates the token with [Validator.ValidateJWT]
//  3. Stores the resulting claims and the raw token in the request context
//  4. Passes the enriched context to the handler
//
// If no authorization metadata is present or validation fails, the
// interceptor returns a gRPC Unauthenticated error carrying the sanitized
// message from the validation result.
func UnaryServerInterceptor(validator *Validator, client ClientConfig) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := authenticateGRPC(ctx, validator, client)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor that
// performs the same authentication as [UnaryServerInterceptor], wrapping
// the stream so handlers see the enriched context.
func StreamServerInterceptor(validator *Validator, client ClientConfig) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := authenticateGRPC(ss.Context(), validator, client)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that
// forwards the raw bearer token from the context (set by [Middleware] or
// the server interceptors) to the outgoing call's metadata.
//
// Calls without a token in the context proceed without authorization
// metadata; the downstream service decides whether to accept them.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(propagateTokenToGRPC(ctx), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor with
// the same token forwarding as [UnaryClientInterceptor].
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(propagateTokenToGRPC(ctx), desc, cc, method, opts...)
	}
}

// authenticateGRPC validates the bearer token in the incoming metadata and
// returns a context enriched with the verified claims and raw token.
func authenticateGRPC(ctx context.Context, validator *Validator, client ClientConfig) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}

	values := md.Get(metadataAuthorization)
	if len(values) == 0 {
		return ctx, status.Error(codes.Unauthenticated, "missing authorization metadata")
	}
	token := ExtractBearerToken(values[0])
	if token == "" {
		return ctx, status.Error(codes.Unauthenticated, "invalid authorization format")
	}

	result := validator.ValidateJWT(ctx, token, client)
	if !result.Valid {
		// The result error has already passed the sanitization boundary.
		return ctx, status.Error(codes.Unauthenticated, result.Error)
	}

	ctx = ContextWithClaims(ctx, result.Claims)
	ctx = ContextWithRawToken(ctx, token)
	return ctx, nil
}

// propagateTokenToGRPC copies the context's raw bearer token into the
// outgoing metadata, merging with any metadata already present.
func propagateTokenToGRPC(ctx context.Context) context.Context {
	token, ok := RawTokenFromContext(ctx)
	if !ok || token == "" {
		return ctx
	}

	md := metadata.Pairs(metadataAuthorization, "Bearer "+token)
	if existing, ok := metadata.FromOutgoingContext(ctx); ok {
		md = metadata.Join(existing, md)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// wrappedServerStream overrides Context so stream handlers observe the
// claims added by the interceptor.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
