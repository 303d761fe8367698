package grpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethodName(t *testing.T) {
	name, err := ParseMethodName("/grpc.health.v1.Health/Check")
	require.NoError(t, err)
	assert.Equal(t, MethodName{Package: "grpc.health.v1", Service: "Health", Method: "Check"}, name)
	assert.Equal(t, "grpc.health.v1.Health", name.QualifiedService())

	for _, invalid := range []string{
		"",
		"/grpc.health.v1.Health",
		"/grpc.health.v1.Health/",
		"grpc.health.v1.Health/Check",
		"/grpc.health.v1.Health./Check",
		"/.Health/Check",
		"/Health/Check",
		"/grpc.health.v1.Health/Check/extra",
		"/grpc.health-v1.Health/Check",
	} {
		_, err := ParseMethodName(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestIsHealthCheckEndpoint(t *testing.T) {
	assert.True(t, IsHealthCheckEndpoint("/grpc.health.v1.Health/Check"))
	assert.True(t, IsHealthCheckEndpoint("/grpc.health.v1.Health/Watch"))
	assert.False(t, IsHealthCheckEndpoint("/grpc.health.v1.HealthCheck/Check"))
	assert.False(t, IsHealthCheckEndpoint("/grpc.reflection.v1.ServerReflection/ServerReflectionInfo"))
}
