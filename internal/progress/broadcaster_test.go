package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(jobID string, stage Stage) Event {
	return Event{
		JobID: jobID,
		Type:  "scrape",
		Event: stage,
		Data:  map[string]any{"source": "example.com"},
		TS:    time.Now(),
	}
}

func TestPublishFansOut(t *testing.T) {
	b := NewBroadcaster(Config{})
	defer b.Close()

	key := Key{JobType: "scrape", Audience: "public"}
	s1 := b.Subscribe(key)
	s2 := b.Subscribe(key)
	defer s1.Close()
	defer s2.Close()

	ev := testEvent("job-1", StageSourceStarted)
	require.NoError(t, b.Publish(key, ev))

	for _, sub := range []*Subscription{s1, s2} {
		select {
		case got := <-sub.C:
			assert.Equal(t, "job-1", got.JobID)
			assert.Equal(t, StageSourceStarted, got.Event)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestLateSubscriberGetsReplay(t *testing.T) {
	b := NewBroadcaster(Config{})
	defer b.Close()

	key := Key{JobType: "scrape", Audience: "public"}
	require.NoError(t, b.Publish(key, testEvent("job-1", StageJobStarted)))
	require.NoError(t, b.Publish(key, testEvent("job-1", StageArticleAdded)))

	sub := b.Subscribe(key)
	defer sub.Close()

	select {
	case got := <-sub.C:
		assert.Equal(t, StageArticleAdded, got.Event, "late joiner should see only the latest event")
	case <-time.After(time.Second):
		t.Fatal("no replay delivered")
	}
}

func TestFeedsAreIsolatedByKey(t *testing.T) {
	b := NewBroadcaster(Config{})
	defer b.Close()

	public := Key{JobType: "scrape", Audience: "public"}
	admin := Key{JobType: "scrape", Audience: "admin"}

	sub := b.Subscribe(admin)
	defer sub.Close()

	require.NoError(t, b.Publish(public, testEvent("job-1", StageJobStarted)))

	select {
	case got := <-sub.C:
		t.Fatalf("admin feed received public event %v", got.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberIsPruned(t *testing.T) {
	b := NewBroadcaster(Config{Buffer: 1})
	defer b.Close()

	key := Key{JobType: "scrape", Audience: "public"}
	sub := b.Subscribe(key)

	require.NoError(t, b.Publish(key, testEvent("job-1", StageJobStarted)))
	// Buffer full now, the second publish drops the subscriber.
	require.NoError(t, b.Publish(key, testEvent("job-1", StageArticleAdded)))

	assert.Equal(t, 0, b.SubscriberCount(key))

	// A pruned subscriber's channel is closed after the buffered event drains.
	<-sub.C
	_, open := <-sub.C
	assert.False(t, open)
}

func TestTerminalEventExpiresAfterGrace(t *testing.T) {
	b := NewBroadcaster(Config{TerminalGrace: 20 * time.Millisecond})
	defer b.Close()

	key := Key{JobType: "scrape", Audience: "public"}
	require.NoError(t, b.Publish(key, testEvent("job-1", StageJobCompleted)))

	_, ok := b.Last(key)
	require.True(t, ok, "terminal event should be retained within the grace window")

	assert.Eventually(t, func() bool {
		_, ok := b.Last(key)
		return !ok
	}, time.Second, 5*time.Millisecond, "terminal event should expire")
}

func TestNewJobCancelsPendingExpiry(t *testing.T) {
	b := NewBroadcaster(Config{TerminalGrace: 30 * time.Millisecond})
	defer b.Close()

	key := Key{JobType: "scrape", Audience: "public"}
	require.NoError(t, b.Publish(key, testEvent("job-1", StageJobCompleted)))
	require.NoError(t, b.Publish(key, testEvent("job-2", StageJobStarted)))

	time.Sleep(60 * time.Millisecond)

	got, ok := b.Last(key)
	require.True(t, ok, "non-terminal state must not be expired by the stale timer")
	assert.Equal(t, "job-2", got.JobID)
}

func TestPublishRejectsInvalidEvents(t *testing.T) {
	b := NewBroadcaster(Config{})
	defer b.Close()
	key := Key{JobType: "scrape", Audience: "public"}

	tests := []struct {
		name string
		ev   Event
	}{
		{"missing job id", Event{Type: "scrape", Event: StageJobStarted, TS: time.Now()}},
		{"missing timestamp", Event{JobID: "j", Type: "scrape", Event: StageJobStarted}},
		{"unknown stage", Event{JobID: "j", Type: "scrape", Event: Stage("bogus"), TS: time.Now()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, b.Publish(key, tt.ev))
		})
	}
}

func TestCloseDetachesSubscribers(t *testing.T) {
	b := NewBroadcaster(Config{})
	key := Key{JobType: "scrape", Audience: "public"}
	sub := b.Subscribe(key)

	b.Close()

	_, open := <-sub.C
	assert.False(t, open)
	// Close after the broadcaster dropped the feed must not panic.
	sub.Close()
}
