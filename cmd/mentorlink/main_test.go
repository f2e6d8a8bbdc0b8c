package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MissingConfigFile(t *testing.T) {
	t.Setenv("MENTORLINK_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	err := run(context.Background())
	assert.ErrorContains(t, err, "failed to load configuration")
}

func TestRun_MissingSecret(t *testing.T) {
	t.Setenv("MENTORLINK_CONFIG_FILE", "")
	t.Setenv("MENTORLINK_AUTH_JWT_SECRET", "")

	err := run(context.Background())
	assert.ErrorContains(t, err, "jwt secret")
}

func TestRun_StartsAndStopsOnCancel(t *testing.T) {
	t.Setenv("MENTORLINK_CONFIG_FILE", "")
	t.Setenv("MENTORLINK_AUTH_JWT_SECRET", "main-test-secret")
	t.Setenv("MENTORLINK_DATABASE_PATH", filepath.Join(t.TempDir(), "data", "mentorlink.db"))
	t.Setenv("MENTORLINK_HTTP_HOST", "127.0.0.1")
	t.Setenv("MENTORLINK_HTTP_PORT", "0")
	t.Setenv("MENTORLINK_LOG_LEVEL", "error")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}
