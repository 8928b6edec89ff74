package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/bagel-payroll/bagel-server/pkg/metrics"
)

const (
	healthCheckEndpoint = "/grpc.health.v1.Health/Check"

	grpcRequestPackageAttributeKey = "grpc.request.package"
	grpcRequestServiceAttributeKey = "grpc.request.service"
	grpcRequestMethodAttributeKey  = "grpc.request.method"

	grpcResponseStatusCodeAttributeKey      = "grpc.response.statusCode"
	grpcResponseStatusMessageAttributeKey   = "grpc.response.statusMessage"
	grpcResponseStatusCodeLevelAttributeKey = "grpc.response.statusCodeLevel"

	infoLevel    = "info"
	warningLevel = "warning"
	errorLevel   = "error"
)

var (
	fullMethodNameRegex = regexp.MustCompile(`^/([a-zA-Z0-9_]+\.)+[a-zA-Z0-9_]+/[a-zA-Z0-9_]+$`)

	statusCodeLevels = map[codes.Code]string{
		codes.OK:              infoLevel,
		codes.AlreadyExists:   infoLevel,
		codes.Canceled:        infoLevel,
		codes.InvalidArgument: infoLevel,
		codes.NotFound:        infoLevel,
		codes.Unauthenticated: infoLevel,

		codes.Aborted:            warningLevel,
		codes.DeadlineExceeded:   warningLevel,
		codes.FailedPrecondition: warningLevel,
		codes.OutOfRange:         warningLevel,
		codes.PermissionDenied:   warningLevel,
		codes.ResourceExhausted:  warningLevel,
		codes.Unavailable:        warningLevel,
	}
)

// ParseFullMethodName parses a gRPC full method name into its components
func ParseFullMethodName(fullMethodName string) (packageName, serviceName, methodName string, err error) {
	if !fullMethodNameRegex.MatchString(fullMethodName) {
		return "", "", "", errors.New("invalid full method name")
	}

	parts := strings.Split(fullMethodName, "/")
	methodName = parts[2]

	parts = strings.Split(parts[1], ".")
	serviceName = parts[len(parts)-1]
	packageName = strings.Join(parts[:len(parts)-1], ".")

	return packageName, serviceName, methodName, nil
}

func defaultUnaryServerInterceptors(log *logrus.Entry, nr *newrelic.Application) []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandler(recoveryHandler(log))),
		newRelicUnaryServerInterceptor(nr),
		grpc_logrus.UnaryServerInterceptor(log, grpc_logrus.WithDecider(logDecider)),
	}
}

func defaultStreamServerInterceptors(log *logrus.Entry, nr *newrelic.Application) []grpc.StreamServerInterceptor {
	return []grpc.StreamServerInterceptor{
		grpc_recovery.StreamServerInterceptor(grpc_recovery.WithRecoveryHandler(recoveryHandler(log))),
		newRelicStreamServerInterceptor(nr),
		grpc_logrus.StreamServerInterceptor(log, grpc_logrus.WithDecider(logDecider)),
	}
}

func recoveryHandler(log *logrus.Entry) grpc_recovery.RecoveryHandlerFunc {
	return func(p interface{}) error {
		log.WithField("panic", fmt.Sprint(p)).Error("recovered from panic in grpc handler")
		return status.Error(codes.Internal, "internal error")
	}
}

// Health checks are too frequent to be worth logging when they succeed
func logDecider(fullMethodName string, err error) bool {
	return err != nil || fullMethodName != healthCheckEndpoint
}

func newRelicUnaryServerInterceptor(app *newrelic.Application) grpc.UnaryServerInterceptor {
	if app == nil {
		return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			return handler(ctx, req)
		}
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx = metrics.WithApplication(ctx, app)

		m := startTransaction(ctx, app, info.FullMethod)
		defer m.End()

		resp, err := handler(newrelic.NewContext(ctx, m), req)
		includeStatusCode(m, err)
		return resp, err
	}
}

func newRelicStreamServerInterceptor(app *newrelic.Application) grpc.StreamServerInterceptor {
	if app == nil {
		return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			return handler(srv, ss)
		}
	}

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := metrics.WithApplication(ss.Context(), app)

		m := startTransaction(ctx, app, info.FullMethod)
		defer m.End()

		err := handler(srv, &wrappedStream{ctx: newrelic.NewContext(ctx, m), ServerStream: ss})
		includeStatusCode(m, err)
		return err
	}
}

type wrappedStream struct {
	ctx context.Context
	grpc.ServerStream
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

func startTransaction(ctx context.Context, app *newrelic.Application, fullMethod string) *newrelic.Transaction {
	method := strings.TrimPrefix(fullMethod, "/")

	var hdrs http.Header
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		hdrs = make(http.Header, len(md))
		for k, vs := range md {
			for _, v := range vs {
				hdrs.Add(k, v)
			}
		}
	}

	txn := app.StartTransaction(method)
	txn.SetWebRequest(newrelic.WebRequest{
		Header: hdrs,
		URL: &url.URL{
			Scheme: "grpc",
			Host:   strings.TrimPrefix(hdrs.Get(":authority"), "dns:///"),
			Path:   method,
		},
		Method:    method,
		Transport: newrelic.TransportHTTP,
	})

	if packageName, serviceName, methodName, err := ParseFullMethodName(fullMethod); err == nil {
		txn.AddAttribute(grpcRequestPackageAttributeKey, packageName)
		txn.AddAttribute(grpcRequestServiceAttributeKey, serviceName)
		txn.AddAttribute(grpcRequestMethodAttributeKey, methodName)
	}

	return txn
}

func includeStatusCode(m *newrelic.Transaction, err error) {
	s := status.Convert(err)

	level, ok := statusCodeLevels[s.Code()]
	if !ok {
		level = errorLevel
	}

	m.SetWebResponse(nil).WriteHeader(int(codes.OK))
	m.AddAttribute(grpcResponseStatusCodeAttributeKey, s.Code().String())
	m.AddAttribute(grpcResponseStatusMessageAttributeKey, s.Message())
	m.AddAttribute(grpcResponseStatusCodeLevelAttributeKey, level)

	if level == errorLevel {
		m.NoticeError(&newrelic.Error{
			Message: s.Message(),
			Class:   "gRPC Status: " + s.Code().String(),
		})
	}
}
