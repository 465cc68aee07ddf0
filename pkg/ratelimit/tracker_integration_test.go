//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_SharedAcrossReplicas(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	replicaA := NewTracker(NewRedisStore(redisClient), logger)
	replicaB := NewTracker(NewRedisStore(redisClient), logger)
	ctx := context.Background()

	state, err := replicaB.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != DefaultRemaining {
		t.Errorf("default Remaining = %d, want %d", state.Remaining, DefaultRemaining)
	}

	headers := http.Header{}
	headers.Set(HeaderRemaining, "75")
	headers.Set(HeaderReset, "120")
	if err := replicaA.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err = replicaB.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() after update error = %v", err)
	}
	if state.Remaining != 75 {
		t.Errorf("Remaining = %d, want 75", state.Remaining)
	}
	if !state.IsHealthy {
		t.Error("state with 75 remaining should be healthy")
	}

	wantReset := 120 * time.Second
	got := state.TimeUntilReset(time.Now())
	if got < wantReset-5*time.Second || got > wantReset+5*time.Second {
		t.Errorf("TimeUntilReset = %v, want approximately %v", got, wantReset)
	}
}

func TestTracker_Integration_ShouldAllowRequest_Critical(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(NewRedisStore(redisClient), logger)
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(HeaderRemaining, "0")
	headers.Set(HeaderReset, "60")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	allowed, wait, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("ShouldAllowRequest() = true, want false for critical state")
	}
	if wait <= 0 {
		t.Errorf("wait = %v, want > 0", wait)
	}
}

func TestTracker_Integration_ShouldAllowRequest_Warning(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(NewRedisStore(redisClient), logger)
	ctx := context.Background()

	headers := http.Header{}
	headers.Set(HeaderRemaining, "5")
	headers.Set(HeaderReset, "60")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	start := time.Now()
	allowed, _, err := tracker.ShouldAllowRequest(ctx)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("ShouldAllowRequest() = false, want true for warning state")
	}
	if duration < 900*time.Millisecond {
		t.Errorf("ShouldAllowRequest() throttle duration = %v, want >= 1s", duration)
	}
}
