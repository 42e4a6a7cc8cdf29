// Package testsupport provides a testcontainers-backed HTTP fixture for
// integration tests that need a real, separately-listening process on
// the other end of a transport — standing in for a peer homeserver or
// the overlay daemon. It is deliberately generic: the bridge's own
// request-forwarding contract is what these tests exercise, not a real
// Synapse or mycelium deployment.
package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// fixtureImage answers every request with a JSON echo of the request it
// received (method, path, headers, body) — exactly the shape an
// integration test needs to assert the bridge forwarded a request
// correctly, without standing up a real homeserver or overlay daemon.
const fixtureImage = "docker.io/kennethreitz/httpbin"
const fixturePort = "80/tcp"

// Fixture wraps a running HTTP echo container.
type Fixture struct {
	container testcontainers.Container
	BaseURL   string
}

// StartFixture starts the echo fixture and blocks until it answers
// HTTP requests, returning its externally reachable base URL.
func StartFixture(t *testing.T) *Fixture {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        fixtureImage,
		ExposedPorts: []string{fixturePort},
		WaitingFor:   wait.ForHTTP("/get").WithPort("80").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "80")
	require.NoError(t, err)

	fx := &Fixture{
		container: container,
		BaseURL:   fmt.Sprintf("http://%s:%s", host, mapped.Port()),
	}
	t.Cleanup(func() { fx.Cleanup(t) })
	return fx
}

// Cleanup terminates the fixture container. Safe to call more than
// once; subsequent calls are no-ops.
func (fx *Fixture) Cleanup(t *testing.T) {
	if fx.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := fx.container.Terminate(ctx); err != nil {
		t.Logf("warning: failed to terminate fixture container: %v", err)
	}
	fx.container = nil
}

// EchoPath is the fixture's request-echoing endpoint: requesting
// BaseURL+EchoPath(p) returns a JSON body describing the request the
// fixture received at path p, including its method and headers.
func EchoPath(path string) string {
	return "/anything" + path
}
