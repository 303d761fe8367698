package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpc_core "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestStatusCodeLevel(t *testing.T) {
	assert.Equal(t, infoLevel, StatusCodeLevel(codes.OK))
	assert.Equal(t, infoLevel, StatusCodeLevel(codes.NotFound))
	assert.Equal(t, warningLevel, StatusCodeLevel(codes.ResourceExhausted))
	assert.Equal(t, warningLevel, StatusCodeLevel(codes.FailedPrecondition))
	assert.Equal(t, errorLevel, StatusCodeLevel(codes.Internal))
	assert.Equal(t, errorLevel, StatusCodeLevel(codes.Unknown))
}

func TestUnaryServerInterceptor_NoApplication(t *testing.T) {
	interceptor := CustomNewRelicUnaryServerInterceptor(nil)

	info := &grpc_core.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "resp", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)

	expected := status.Error(codes.Unavailable, "unavailable")
	_, err = interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, expected
	})
	assert.Equal(t, expected, err)
}

func TestAuthorityHost(t *testing.T) {
	assert.Equal(t, "example.com:443", authorityHost("dns:///example.com:443"))
	assert.Equal(t, "localhost", authorityHost("unix:/tmp/sock"))
	assert.Equal(t, "", authorityHost(""))
}
