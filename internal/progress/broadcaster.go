package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBuffer is the per-subscriber channel depth. A subscriber
	// that lets its buffer fill is treated as disconnected and pruned.
	DefaultBuffer = 64

	// DefaultTerminalGrace is how long a terminal event stays replayable
	// after a job finishes, so clients that connect just after completion
	// still see the outcome.
	DefaultTerminalGrace = 30 * time.Second
)

// Config tunes a Broadcaster. Zero values take the package defaults.
type Config struct {
	Buffer        int
	TerminalGrace time.Duration
	Logger        *zap.Logger
}

func (c *Config) withDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = DefaultBuffer
	}
	if c.TerminalGrace <= 0 {
		c.TerminalGrace = DefaultTerminalGrace
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Subscription is one subscriber's view of a feed. Events arrives on C;
// Close detaches the subscriber and releases its buffer.
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	once sync.Once
	stop func()
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.stop)
}

type feed struct {
	subs map[*Subscription]struct{}
	last *Event
	// clear is the pending grace timer after a terminal event.
	clear *time.Timer
}

// Broadcaster fans progress events out to subscribers grouped by
// (job type, audience). The last event per feed is replayed to late
// joiners so a client reconnecting mid-run sees current state.
type Broadcaster struct {
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	feeds map[Key]*feed
}

// NewBroadcaster builds a Broadcaster with the given config.
func NewBroadcaster(cfg Config) *Broadcaster {
	cfg.withDefaults()
	return &Broadcaster{
		cfg:   cfg,
		log:   cfg.Logger.Named("progress"),
		feeds: make(map[Key]*feed),
	}
}

// Subscribe attaches a new subscriber to the feed for key. If the feed has
// a retained event it is delivered first, before any live events.
func (b *Broadcaster) Subscribe(key Key) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := b.feeds[key]
	if f == nil {
		f = &feed{subs: make(map[*Subscription]struct{})}
		b.feeds[key] = f
	}

	ch := make(chan Event, b.cfg.Buffer)
	sub := &Subscription{C: ch, ch: ch}
	sub.stop = func() { b.unsubscribe(key, sub) }
	f.subs[sub] = struct{}{}

	if f.last != nil {
		// Buffer is empty here, the send cannot block.
		ch <- *f.last
	}

	b.log.Debug("subscriber attached",
		zap.String("feed", key.String()),
		zap.Int("subscribers", len(f.subs)))
	return sub
}

// Publish delivers the event to every subscriber of key and retains it for
// replay. Subscribers with full buffers are dropped rather than blocked on.
func (b *Broadcaster) Publish(key Key, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f := b.feeds[key]
	if f == nil {
		f = &feed{subs: make(map[*Subscription]struct{})}
		b.feeds[key] = f
	}

	if f.clear != nil {
		f.clear.Stop()
		f.clear = nil
	}

	retained := ev
	f.last = &retained

	for sub := range f.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(f.subs, sub)
			close(sub.ch)
			b.log.Warn("dropping slow progress subscriber",
				zap.String("feed", key.String()),
				zap.String("jobId", ev.JobID))
		}
	}

	if ev.Terminal() {
		f.clear = time.AfterFunc(b.cfg.TerminalGrace, func() {
			b.expire(key, ev.JobID)
		})
	}
	return nil
}

// Last returns the retained event for key, if any.
func (b *Broadcaster) Last(key Key) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.feeds[key]
	if f == nil || f.last == nil {
		return Event{}, false
	}
	return *f.last, true
}

// SubscriberCount reports live subscribers on the feed for key.
func (b *Broadcaster) SubscriberCount(key Key) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f := b.feeds[key]; f != nil {
		return len(f.subs)
	}
	return 0
}

// Close detaches every subscriber and drops all retained state.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, f := range b.feeds {
		if f.clear != nil {
			f.clear.Stop()
		}
		for sub := range f.subs {
			close(sub.ch)
		}
		delete(b.feeds, key)
	}
}

func (b *Broadcaster) unsubscribe(key Key, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.feeds[key]
	if f == nil {
		return
	}
	if _, ok := f.subs[sub]; !ok {
		return
	}
	delete(f.subs, sub)
	close(sub.ch)
}

// expire drops the retained terminal event once the grace window passes,
// provided no newer event replaced it in the meantime.
func (b *Broadcaster) expire(key Key, jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.feeds[key]
	if f == nil || f.last == nil {
		return
	}
	if !f.last.Terminal() || f.last.JobID != jobID {
		return
	}
	f.last = nil
	f.clear = nil
	if len(f.subs) == 0 {
		delete(b.feeds, key)
	}
}
