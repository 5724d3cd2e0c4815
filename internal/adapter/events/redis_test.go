package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introweave/matchpipe/internal/adapter/events"
	"github.com/introweave/matchpipe/internal/domain"
)

type recordingNotifier struct {
	mu  sync.Mutex
	evs []domain.JobEvent
}

func (n *recordingNotifier) Publish(_ domain.Context, ev domain.JobEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evs = append(n.evs, ev)
}

func (n *recordingNotifier) events() []domain.JobEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.JobEvent(nil), n.evs...)
}

func TestBus_RoundTripThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	local := &recordingNotifier{}
	bus := events.NewBus(rdb, "matchpipe:events", local)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	ev := domain.JobEvent{
		Type:     domain.EventDealUpdate,
		UserID:   "user-1",
		JobID:    "job-1",
		Status:   string(domain.JobMatchingFirms),
		Progress: 35,
	}
	// Subscription setup races Run; retry until the event arrives.
	deadline := time.Now().Add(3 * time.Second)
	for {
		bus.Publish(ctx, ev)
		time.Sleep(50 * time.Millisecond)
		if got := local.events(); len(got) > 0 {
			// Routing user id is restored from the envelope.
			assert.Equal(t, "user-1", got[0].UserID)
			assert.Equal(t, "job-1", got[0].JobID)
			assert.Equal(t, 35, got[0].Progress)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("event never reached local notifier")
		}
	}
}

func TestBus_PublishFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()
	mr.Close()

	local := &recordingNotifier{}
	bus := events.NewBus(rdb, "matchpipe:events", local)

	bus.Publish(context.Background(), domain.JobEvent{UserID: "user-2", JobID: "job-2"})
	got := local.events()
	require.Len(t, got, 1)
	assert.Equal(t, "job-2", got[0].JobID)
}
