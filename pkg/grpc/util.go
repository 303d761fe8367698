package grpc

import (
	"errors"
	"strings"

	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

var errInvalidMethodName = errors.New("invalid full method name")

// MethodName is a parsed gRPC full method name of the form
// /<package>.<service>/<method>.
type MethodName struct {
	Package string
	Service string
	Method  string
}

// QualifiedService returns the package qualified service name.
func (n MethodName) QualifiedService() string {
	return n.Package + "." + n.Service
}

func ParseMethodName(fullMethodName string) (MethodName, error) {
	rest, ok := strings.CutPrefix(fullMethodName, "/")
	if !ok {
		return MethodName{}, errInvalidMethodName
	}

	qualified, method, ok := strings.Cut(rest, "/")
	if !ok || !isIdentifier(method) {
		return MethodName{}, errInvalidMethodName
	}

	idx := strings.LastIndexByte(qualified, '.')
	if idx < 0 {
		return MethodName{}, errInvalidMethodName
	}
	for _, part := range strings.Split(qualified, ".") {
		if !isIdentifier(part) {
			return MethodName{}, errInvalidMethodName
		}
	}

	return MethodName{
		Package: qualified[:idx],
		Service: qualified[idx+1:],
		Method:  method,
	}, nil
}

// IsHealthCheckEndpoint returns whether a method belongs to the health service
func IsHealthCheckEndpoint(fullMethodName string) bool {
	name, err := ParseMethodName(fullMethodName)
	return err == nil && name.QualifiedService() == healthgrpc.Health_ServiceDesc.ServiceName
}

func isIdentifier(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
