package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/infra/database"
)

func TestSignalRoundTrip(t *testing.T) {
	addr := os.Getenv("CASTLINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CASTLINE_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := database.NewRedis(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	signal := NewSignalService(client)
	channel := "test-" + uuid.NewString()

	events, closeFn := signal.Subscribe(ctx, channel)
	defer closeFn()
	// give the subscription time to register before publishing
	time.Sleep(200 * time.Millisecond)

	sent := castline.Event{Type: castline.EventAggregateChanged, Fingerprint: "abc", Count: 3, At: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, client.Publish(ctx, channel, "not json").Err())
	require.NoError(t, signal.Publish(ctx, channel, sent))

	select {
	case got := <-events:
		assert.Equal(t, sent.Fingerprint, got.Fingerprint)
		assert.Equal(t, sent.Count, got.Count)
		assert.True(t, sent.At.Equal(got.At))
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}
