package metrics

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	grpc_core "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/code-payments/tokadapt-server/pkg/grpc"
	"github.com/code-payments/tokadapt-server/pkg/metrics"
)

const (
	grpcRequestPackageAttributeKey = "grpc.request.package"
	grpcRequestServiceAttributeKey = "grpc.request.service"
	grpcRequestMethodAttributeKey  = "grpc.request.method"

	grpcResponseStatusCodeAttributeKey      = "grpc.response.statusCode"
	grpcResponseStatusMessageAttributeKey   = "grpc.response.statusMessage"
	grpcResponseStatusCodeLevelAttributeKey = "grpc.response.statusCodeLevel"

	clientUserAgentAttributeKey = "grpc.client.userAgent"

	infoLevel    = "info"
	warningLevel = "warning"
	errorLevel   = "error"
)

// StatusCodeLevel classifies a gRPC status code. Codes not known to be caused
// by the client or by transient conditions are errors.
func StatusCodeLevel(code codes.Code) string {
	switch code {
	case codes.OK, codes.AlreadyExists, codes.Canceled, codes.InvalidArgument, codes.NotFound, codes.Unauthenticated:
		return infoLevel
	case codes.Aborted, codes.DeadlineExceeded, codes.FailedPrecondition, codes.OutOfRange, codes.PermissionDenied, codes.ResourceExhausted, codes.Unavailable:
		return warningLevel
	default:
		return errorLevel
	}
}

// CustomNewRelicUnaryServerInterceptor records every unary call as a New
// Relic web transaction. Health checks are not recorded.
func CustomNewRelicUnaryServerInterceptor(app *newrelic.Application) grpc_core.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc_core.UnaryServerInfo, handler grpc_core.UnaryHandler) (resp interface{}, err error) {
		err = observe(ctx, app, info.FullMethod, func(ctx context.Context) error {
			resp, err = handler(ctx, req)
			return err
		})
		return resp, err
	}
}

func CustomNewRelicStreamServerInterceptor(app *newrelic.Application) grpc_core.StreamServerInterceptor {
	return func(srv interface{}, ss grpc_core.ServerStream, info *grpc_core.StreamServerInfo, handler grpc_core.StreamHandler) error {
		return observe(ss.Context(), app, info.FullMethod, func(ctx context.Context) error {
			return handler(srv, &wrappedStream{ctx: ctx, ServerStream: ss})
		})
	}
}

// observe runs call within a transaction for fullMethod. The context handed
// to call carries both the application and the transaction.
func observe(ctx context.Context, app *newrelic.Application, fullMethod string, call func(context.Context) error) error {
	if app == nil || grpc.IsHealthCheckEndpoint(fullMethod) {
		return call(ctx)
	}

	ctx = metrics.WithNewRelic(ctx, app)
	txn := startTransaction(ctx, app, fullMethod)
	defer txn.End()

	err := call(newrelic.NewContext(ctx, txn))
	includeGRPCStatusCode(txn, err)
	return err
}

type wrappedStream struct {
	ctx context.Context
	grpc_core.ServerStream
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

func startTransaction(ctx context.Context, app *newrelic.Application, fullMethod string) *newrelic.Transaction {
	method := strings.TrimPrefix(fullMethod, "/")

	hdrs := make(http.Header)
	md, _ := metadata.FromIncomingContext(ctx)
	for k, vs := range md {
		for _, v := range vs {
			hdrs.Add(k, v)
		}
	}

	txn := app.StartTransaction(method)
	txn.SetWebRequest(newrelic.WebRequest{
		Header:    hdrs,
		URL:       &url.URL{Scheme: "grpc", Host: authorityHost(hdrs.Get(":authority")), Path: method},
		Method:    method,
		Transport: newrelic.TransportHTTP,
	})

	attributes := map[string]string{
		clientUserAgentAttributeKey: hdrs.Get("user-agent"),
	}
	if name, err := grpc.ParseMethodName(fullMethod); err == nil {
		attributes[grpcRequestPackageAttributeKey] = name.Package
		attributes[grpcRequestServiceAttributeKey] = name.Service
		attributes[grpcRequestMethodAttributeKey] = name.Method
	}
	for k, v := range attributes {
		if len(v) > 0 {
			txn.AddAttribute(k, v)
		}
	}

	return txn
}

func authorityHost(target string) string {
	if strings.HasPrefix(target, "unix:") {
		return "localhost"
	}
	return strings.TrimPrefix(target, "dns:///")
}

func includeGRPCStatusCode(txn *newrelic.Transaction, err error) {
	s := status.Convert(err)
	level := StatusCodeLevel(s.Code())

	txn.SetWebResponse(nil).WriteHeader(int(codes.OK))
	txn.AddAttribute(grpcResponseStatusCodeAttributeKey, s.Code().String())
	txn.AddAttribute(grpcResponseStatusMessageAttributeKey, s.Message())
	txn.AddAttribute(grpcResponseStatusCodeLevelAttributeKey, level)

	if level == errorLevel {
		txn.NoticeError(&newrelic.Error{
			Message: s.Message(),
			Class:   "gRPC Status: " + s.Code().String(),
		})
	}
}
