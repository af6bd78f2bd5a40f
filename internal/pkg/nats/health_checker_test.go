package nats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHealthCheckerWithoutConnection(t *testing.T) {
	hc := NewHealthChecker(nil, time.Millisecond)
	require.False(t, hc.IsHealthy())
	require.Equal(t, "disabled", hc.Status())
	require.False(t, hc.Snapshot().ChangedAt.IsZero())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		hc.Start(ctx)
		close(done)
	}()
	hc.Stop()
	hc.Stop()
	<-done
}

func TestHealthCheckerNilReceiver(t *testing.T) {
	var hc *HealthChecker
	require.Equal(t, "disabled", hc.Status())
	require.Equal(t, "disabled", hc.Snapshot().Status)
}
