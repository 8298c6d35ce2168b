package logutil

import (
	"context"
	"strconv"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
)

const (
	logLevelRPCMetaKey    = "log-level"
	clientRequestIDKey    = "client_request_id"
	clientRequestMsecKey  = "client-request-msec"
	slowCallWarnThreshold = time.Second
)

// UnaryTraceClientInterceptor 为一元 RPC 调用附加 Trace 信息，并记录调用耗时。
func UnaryTraceClientInterceptor(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	newctx := withOutgoingTrace(ctx)
	start := time.Now()
	err := invoker(newctx, method, req, reply, cc, opts...)
	logCall(newctx, method, time.Since(start), err)
	return err
}

// StreamTraceClientInterceptor 为流式 RPC 调用附加 Trace 信息。
func StreamTraceClientInterceptor(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	newctx := withOutgoingTrace(ctx)
	stream, err := streamer(newctx, desc, cc, method, opts...)
	if err != nil {
		log.Ctx(newctx).Warn("grpc stream open failed", zap.String("method", method), zap.Error(err))
	}
	return stream, err
}

// DialOptions 返回挂载上述拦截器的 grpc.DialOption，供 etcd 等 gRPC 客户端使用。
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(UnaryTraceClientInterceptor)),
		grpc.WithStreamInterceptor(grpc_middleware.ChainStreamClient(StreamTraceClientInterceptor)),
	}
}

// WithLogLevel 要求服务端以指定级别记录本次调用的日志。
func WithLogLevel(ctx context.Context, level string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, logLevelRPCMetaKey, level)
}

func withOutgoingTrace(ctx context.Context) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	newctx := ctx
	if len(GetMetadata(md, clientRequestIDKey)) == 0 {
		if traceID := trace.SpanContextFromContext(ctx).TraceID(); traceID.IsValid() {
			newctx = metadata.AppendToOutgoingContext(newctx, clientRequestIDKey, traceID.String())
		}
	}
	if len(GetMetadata(md, clientRequestMsecKey)) == 0 {
		newctx = metadata.AppendToOutgoingContext(newctx, clientRequestMsecKey, strconv.FormatInt(time.Now().UnixMilli(), 10))
	}
	return newctx
}

func logCall(ctx context.Context, method string, cost time.Duration, err error) {
	logger := log.Ctx(ctx).With(zap.String("method", method), zap.Duration("cost", cost))
	switch {
	case err != nil:
		logger.Warn("grpc call failed", zap.Error(err))
	case cost > slowCallWarnThreshold:
		logger.RatedWarn(1, "grpc call slow")
	default:
		logger.Debug("grpc call finished")
	}
}

// GetClientReqUnixmsec 读取 outgoing metadata 中的客户端请求时间戳（毫秒）。
func GetClientReqUnixmsec(ctx context.Context) (int64, bool) {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		return -1, false
	}
	values := GetMetadata(md, clientRequestMsecKey)
	if len(values) < 1 {
		return -1, false
	}
	msec, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return -1, false
	}
	return msec, true
}

func GetMetadata(md metadata.MD, keys ...string) []string {
	var result []string
	for _, key := range keys {
		if values := md.Get(key); len(values) > 0 {
			result = append(result, values...)
		}
	}
	return result
}
