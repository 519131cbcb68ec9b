package capture

import (
	"context"
	"log"
	"sync"
	"time"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/powerscope/powerscope/internal/parse"
)

// DefaultCapacity is the number of spans kept when none is configured.
const DefaultCapacity = 10_000

// Store keeps the most recent spans exported to the receiver and notifies
// subscribers when new ones arrive.
type Store struct {
	spans   *RingBuffer[parse.TraceRecord]
	verbose bool

	mu       sync.Mutex
	batches  uint64
	lastSeen time.Time

	subscriberMu     sync.Mutex
	subscribers      map[uint64]chan struct{}
	nextSubscriberID uint64
}

// Stats describes the contents of a Store.
type Stats struct {
	Spans    int       `json:"spans"`
	Capacity int       `json:"capacity"`
	Dropped  uint64    `json:"dropped"`
	Batches  uint64    `json:"batches"`
	LastSeen time.Time `json:"last_seen"`
}

// NewStore creates a store holding up to capacity spans.
func NewStore(capacity int, verbose bool) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		spans:       NewRingBuffer[parse.TraceRecord](capacity),
		verbose:     verbose,
		subscribers: make(map[uint64]chan struct{}),
	}
}

// ReceiveSpans flattens exported OTLP spans into trace records.
func (s *Store) ReceiveSpans(ctx context.Context, resourceSpans []*tracepb.ResourceSpans) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records := parse.RecordsFromResourceSpans(resourceSpans)
	if len(records) == 0 {
		return nil
	}
	s.spans.AddAll(records)

	s.mu.Lock()
	s.batches++
	s.lastSeen = time.Now()
	s.mu.Unlock()

	if s.verbose {
		log.Printf("📡 Capture: received %d spans (%d buffered)\n", len(records), s.spans.Size())
	}
	s.notifySubscribers()
	return nil
}

// TraceSnapshot returns the buffered spans as an epoch trace, or nil when
// nothing was captured.
func (s *Store) TraceSnapshot() *parse.TraceData {
	records := s.spans.GetAll()
	if len(records) == 0 {
		return nil
	}
	return &parse.TraceData{Records: records, Epoch: true}
}

// Stats returns buffer counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Spans:    s.spans.Size(),
		Capacity: s.spans.Capacity(),
		Dropped:  s.spans.Dropped(),
		Batches:  s.batches,
		LastSeen: s.lastSeen,
	}
}

// Clear drops every buffered span.
func (s *Store) Clear() {
	s.spans.Clear()
	s.mu.Lock()
	s.batches = 0
	s.lastSeen = time.Time{}
	s.mu.Unlock()
	s.notifySubscribers()
}

// Subscribe returns a channel signalled whenever spans arrive, and an
// unsubscribe function. The channel has capacity 1 so bursts coalesce.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	id := s.nextSubscriberID
	s.nextSubscriberID++

	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	unsubscribe := func() {
		s.subscriberMu.Lock()
		defer s.subscriberMu.Unlock()
		delete(s.subscribers, id)
	}
	return ch, unsubscribe
}

func (s *Store) notifySubscribers() {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
