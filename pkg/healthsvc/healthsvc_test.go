package healthsvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/fortiblox/X1-Pulse/internal/types"
	"github.com/fortiblox/X1-Pulse/pkg/logger"
	"github.com/fortiblox/X1-Pulse/pkg/poller"
)

var endpoints = []types.Endpoint{
	{URL: "https://alpha.example.com", Nickname: "alpha"},
	{URL: "https://beta.example.com", Nickname: "beta"},
}

func status(t *testing.T, hs healthpb.HealthServer, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func cycle(alphaStored, betaStored bool) poller.CycleResult {
	return poller.CycleResult{
		Results: []poller.EndpointResult{
			{Endpoint: endpoints[0], Stored: alphaStored},
			{Endpoint: endpoints[1], Stored: betaStored},
		},
	}
}

func TestService_StatusTransitions(t *testing.T) {
	svc := New(Config{Logger: logger.Discard()}, endpoints)
	hs := svc.Health()

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, hs, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, hs, ServiceName("alpha")))

	svc.OnCycle(cycle(true, false))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs, "pulse.endpoint.alpha"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, hs, "pulse.endpoint.beta"))

	svc.OnCycle(cycle(false, true))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, hs, "pulse.endpoint.alpha"))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs, "pulse.endpoint.beta"))

	_, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "pulse.endpoint.unknown"})
	assert.Error(t, err)
}

func TestService_Stale(t *testing.T) {
	svc := New(Config{Logger: logger.Discard(), StaleAfter: time.Minute}, endpoints)

	svc.checkStale(time.Now())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, svc.Health(), ""), "no cycle yet")

	svc.OnCycle(cycle(true, true))
	svc.checkStale(time.Now().Add(30 * time.Second))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, svc.Health(), ""))

	svc.checkStale(time.Now().Add(2 * time.Minute))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, svc.Health(), ""))
}

func TestService_ServesOverGRPC(t *testing.T) {
	svc := New(Config{ListenAddress: "127.0.0.1:0", Logger: logger.Discard()}, endpoints)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()
	assert.ErrorIs(t, svc.Start(ctx), ErrAlreadyStarted)

	svc.OnCycle(cycle(true, true))

	conn, err := grpc.Dial(svc.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()

	resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: ServiceName("beta")})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestWatchPeriod(t *testing.T) {
	assert.Equal(t, minWatchPeriod, watchPeriod(time.Nanosecond))
	assert.Equal(t, minWatchPeriod, watchPeriod(minWatchPeriod))
	assert.Equal(t, 15*time.Second, watchPeriod(DefaultStaleAfter))
}

func TestService_TinyStaleAfter(t *testing.T) {
	svc := New(Config{ListenAddress: "127.0.0.1:0", Logger: logger.Discard(), StaleAfter: time.Nanosecond}, endpoints)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))

	svc.OnCycle(cycle(true, true))
	assert.Eventually(t, func() bool {
		return status(t, svc.Health(), "") == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, minWatchPeriod, "a nanosecond horizon is always stale")
	svc.Stop()
}
