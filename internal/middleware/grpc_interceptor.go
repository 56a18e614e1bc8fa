package middleware

import (
	"context"
	"errors"

	"github.com/Muhammadurasheed/genesis-breaker/internal/circuitbreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCInterceptorConfig configures the gRPC client interceptors
type GRPCInterceptorConfig struct {
	// Registry holding the per-dependency breakers
	Registry *circuitbreaker.Registry

	// Dependency names the guarded downstream. When empty, the full gRPC
	// method name is used, giving each method its own breaker.
	Dependency string

	// IsSuccessful determines if an RPC error counts against the
	// dependency. Defaults to treating client-fault status codes as
	// successful.
	IsSuccessful func(err error) bool
}

// UnaryClientInterceptor returns a gRPC client interceptor that wraps calls
// with circuit breaker admission control
func UnaryClientInterceptor(config GRPCInterceptorConfig) grpc.UnaryClientInterceptor {
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultGRPCIsSuccessful
	}

	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		dependency := config.Dependency
		if dependency == "" {
			dependency = method
		}

		var rpcErr error
		result := config.Registry.Execute(ctx, dependency, func(ctx context.Context) (any, error) {
			rpcErr = invoker(ctx, method, req, reply, cc, opts...)
			if config.IsSuccessful(rpcErr) {
				// Client-fault errors don't count against the dependency,
				// but the caller still sees them.
				return nil, nil
			}
			return nil, rpcErr
		}, nil)

		if err := rejectionStatus(result); err != nil {
			return err
		}
		return rpcErr
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that
// guards stream establishment
func StreamClientInterceptor(config GRPCInterceptorConfig) grpc.StreamClientInterceptor {
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultGRPCIsSuccessful
	}

	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		dependency := config.Dependency
		if dependency == "" {
			dependency = method
		}

		var stream grpc.ClientStream
		var rpcErr error
		result := config.Registry.Execute(ctx, dependency, func(ctx context.Context) (any, error) {
			stream, rpcErr = streamer(ctx, desc, cc, method, opts...)
			if config.IsSuccessful(rpcErr) {
				return nil, nil
			}
			return nil, rpcErr
		}, nil)

		if err := rejectionStatus(result); err != nil {
			return nil, err
		}
		return stream, rpcErr
	}
}

// rejectionStatus maps breaker rejections to gRPC status errors
func rejectionStatus(result circuitbreaker.CallResult) error {
	switch {
	case errors.Is(result.Err, circuitbreaker.ErrCircuitOpen):
		return status.Error(codes.Unavailable, "circuit breaker is open")
	case errors.Is(result.Err, circuitbreaker.ErrHalfOpenLimit):
		return status.Error(codes.ResourceExhausted, "circuit breaker half-open limit exceeded")
	}
	return nil
}

// defaultGRPCIsSuccessful considers nil errors and client-fault codes as
// successful
func defaultGRPCIsSuccessful(err error) bool {
	if err == nil {
		return true
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	// These codes indicate caller errors, not dependency failures
	switch st.Code() {
	case codes.OK:
		return true
	case codes.Canceled:
		return true // Client cancelled, not a dependency failure
	case codes.InvalidArgument:
		return true
	case codes.NotFound:
		return true
	case codes.AlreadyExists:
		return true
	case codes.PermissionDenied:
		return true
	case codes.Unauthenticated:
		return true
	default:
		return false // Server errors
	}
}
