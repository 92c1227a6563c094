package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// MemoryLog is an in-process event log with consumer-group semantics. It
// implements Publisher, and Subscribe returns Subscriptions that behave like
// the stream backends: per-group cursor, per-consumer pending entries and
// redelivery of unacknowledged messages.
type MemoryLog struct {
	mu      sync.Mutex
	entries []memoryEntry
	dead    []DeadLetter
	groups  map[string]*memoryGroup
	notify  chan struct{}
	logger  *slog.Logger
}

// DeadLetter is a message moved aside by Subscription.DeadLetter.
type DeadLetter struct {
	Message Message
	Reason  string
}

type memoryEntry struct {
	id   string
	seq  int
	body []byte
}

type memoryGroup struct {
	cursor  int
	pending map[string]*memoryPending
}

type memoryPending struct {
	entry      memoryEntry
	consumer   string
	deliveries int64
}

// NewMemoryLog creates an empty log.
func NewMemoryLog(logger *slog.Logger) *MemoryLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryLog{
		groups: make(map[string]*memoryGroup),
		notify: make(chan struct{}),
		logger: logger.With("component", "memory_event_log"),
	}
}

var _ Publisher = (*MemoryLog)(nil)

// Publish appends the event to the log.
func (l *MemoryLog) Publish(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := event.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	l.mu.Lock()
	seq := len(l.entries) + 1
	l.entries = append(l.entries, memoryEntry{
		id:   fmt.Sprintf("%d-0", seq),
		seq:  seq,
		body: body,
	})
	close(l.notify)
	l.notify = make(chan struct{})
	l.mu.Unlock()

	l.logger.Debug("event appended",
		"event_id", event.ID,
		"event_type", event.Type,
		"entry_seq", seq)
	return nil
}

// AppendRaw appends an arbitrary body, bypassing encoding. It is used to
// inject malformed messages.
func (l *MemoryLog) AppendRaw(body []byte) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := len(l.entries) + 1
	id := fmt.Sprintf("%d-0", seq)
	l.entries = append(l.entries, memoryEntry{id: id, seq: seq, body: body})
	close(l.notify)
	l.notify = make(chan struct{})
	return id
}

// Len returns the number of entries ever appended.
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Events decodes every well-formed entry in append order.
func (l *MemoryLog) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Event, 0, len(l.entries))
	for _, entry := range l.entries {
		if event, err := Decode(entry.body); err == nil {
			out = append(out, event)
		}
	}
	return out
}

// Pending returns how many messages the group has fetched but not
// acknowledged.
func (l *MemoryLog) Pending(group string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if g, ok := l.groups[group]; ok {
		return len(g.pending)
	}
	return 0
}

// DeadLetters returns the messages moved to the dead-letter list.
func (l *MemoryLog) DeadLetters() []DeadLetter {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DeadLetter, len(l.dead))
	copy(out, l.dead)
	return out
}

// Subscribe returns a Subscription for one consumer of group. Fetch returns
// at most batchSize messages and waits up to block for new ones.
func (l *MemoryLog) Subscribe(group, consumer string, batchSize int, block time.Duration) *MemorySubscription {
	if batchSize <= 0 {
		batchSize = 10
	}

	l.mu.Lock()
	if _, ok := l.groups[group]; !ok {
		l.groups[group] = &memoryGroup{pending: make(map[string]*memoryPending)}
	}
	l.mu.Unlock()

	return &MemorySubscription{
		log:       l,
		group:     group,
		consumer:  consumer,
		batchSize: batchSize,
		block:     block,
	}
}

// MemorySubscription is a Subscription on a MemoryLog.
type MemorySubscription struct {
	log       *MemoryLog
	group     string
	consumer  string
	batchSize int
	block     time.Duration

	mu     sync.Mutex
	closed bool
}

var _ Subscription = (*MemorySubscription)(nil)

// Fetch implements Subscription.Fetch.
func (s *MemorySubscription) Fetch(ctx context.Context) ([]Message, error) {
	var timeout <-chan time.Time
	if s.block > 0 {
		timer := time.NewTimer(s.block)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		if s.isClosed() {
			return nil, ErrSubscriptionClosed
		}

		s.log.mu.Lock()
		batch := s.collectLocked()
		wait := s.log.notify
		s.log.mu.Unlock()

		if len(batch) > 0 {
			return batch, nil
		}
		if timeout == nil {
			return nil, nil
		}

		select {
		case <-wait:
		case <-timeout:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// collectLocked returns this consumer's pending messages first, then new
// entries past the group cursor. The caller holds log.mu.
func (s *MemorySubscription) collectLocked() []Message {
	group := s.log.groups[s.group]

	var own []*memoryPending
	for _, p := range group.pending {
		if p.consumer == s.consumer {
			own = append(own, p)
		}
	}
	if len(own) > 0 {
		sort.Slice(own, func(i, j int) bool { return own[i].entry.seq < own[j].entry.seq })
		if len(own) > s.batchSize {
			own = own[:s.batchSize]
		}
		batch := make([]Message, 0, len(own))
		for _, p := range own {
			p.deliveries++
			batch = append(batch, Message{ID: p.entry.id, Body: p.entry.body, Deliveries: p.deliveries})
		}
		return batch
	}

	var batch []Message
	for group.cursor < len(s.log.entries) && len(batch) < s.batchSize {
		entry := s.log.entries[group.cursor]
		group.cursor++
		group.pending[entry.id] = &memoryPending{entry: entry, consumer: s.consumer, deliveries: 1}
		batch = append(batch, Message{ID: entry.id, Body: entry.body, Deliveries: 1})
	}
	return batch
}

// Ack implements Subscription.Ack.
func (s *MemorySubscription) Ack(_ context.Context, msg Message) error {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	delete(s.log.groups[s.group].pending, msg.ID)
	return nil
}

// Retry implements Subscription.Retry. Unacknowledged messages stay pending
// for this consumer, so there is nothing to do.
func (s *MemorySubscription) Retry(context.Context, Message) error {
	return nil
}

// DeadLetter implements Subscription.DeadLetter.
func (s *MemorySubscription) DeadLetter(ctx context.Context, msg Message, reason string) error {
	s.log.mu.Lock()
	s.log.dead = append(s.log.dead, DeadLetter{Message: msg, Reason: reason})
	s.log.mu.Unlock()
	return s.Ack(ctx, msg)
}

// Close implements Subscription.Close.
func (s *MemorySubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemorySubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
