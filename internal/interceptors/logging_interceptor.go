package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/Dhoini/job-tracker/pkg/logger"
)

// LoggingInterceptor пишет в лог каждый unary-вызов gRPC.
type LoggingInterceptor struct {
	log *logger.Logger
}

func NewLoggingInterceptor(log *logger.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{log: log}
}

// Unary возвращает UnaryServerInterceptor с логированием метода, кода и длительности.
func (i *LoggingInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		if err != nil {
			i.log.Warnw("gRPC call failed", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start).String(), "error", err)
		} else {
			i.log.Debugw("gRPC call", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start).String())
		}
		return resp, err
	}
}
