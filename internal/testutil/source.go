package testutil

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/pagedlist/pkg/source"
)

// Items returns items with ids from..to (inclusive) and titles "item N".
func Items(from, to int) []source.Item {
	if to < from {
		return []source.Item{}
	}
	items := make([]source.Item, 0, to-from+1)
	for i := from; i <= to; i++ {
		items = append(items, source.Item{ID: strconv.Itoa(i), Title: "item " + strconv.Itoa(i)})
	}
	return items
}

type readReply struct {
	items []source.Item
	err   error
}

// PendingRead is a read blocked in a ControlledSource until the test answers it.
type PendingRead struct {
	Ctx    context.Context
	Offset int
	Limit  int

	reply chan readReply
	once  sync.Once
}

// Respond completes the read with the given result. Only the first call counts.
func (p *PendingRead) Respond(items []source.Item, err error) {
	p.once.Do(func() {
		p.reply <- readReply{items: items, err: err}
	})
}

// ControlledSource is an ItemSource whose reads complete only when the test
// responds to them, so tests choose the completion order.
type ControlledSource struct {
	// HonorCancel makes reads return ctx.Err() as soon as their context is done.
	HonorCancel bool

	reads chan *PendingRead

	mu    sync.Mutex
	count int
}

// NewControlledSource creates a ControlledSource.
func NewControlledSource() *ControlledSource {
	return &ControlledSource{reads: make(chan *PendingRead, 64)}
}

// Read implements source.ItemSource.
func (s *ControlledSource) Read(ctx context.Context, offset, limit int) ([]source.Item, error) {
	p := &PendingRead{Ctx: ctx, Offset: offset, Limit: limit, reply: make(chan readReply, 1)}

	s.mu.Lock()
	s.count++
	s.mu.Unlock()

	s.reads <- p

	if s.HonorCancel {
		select {
		case r := <-p.reply:
			return r.items, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r := <-p.reply
	return r.items, r.err
}

// Next returns the next read issued against the source, failing the test if
// none arrives within two seconds.
func (s *ControlledSource) Next(t testing.TB) *PendingRead {
	t.Helper()
	select {
	case p := <-s.reads:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a read")
		return nil
	}
}

// ExpectNoRead fails the test if a read is issued within d.
func (s *ControlledSource) ExpectNoRead(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case p := <-s.reads:
		t.Fatalf("unexpected read offset=%d limit=%d", p.Offset, p.Limit)
	case <-time.After(d):
	}
}

// Count returns the number of reads issued so far.
func (s *ControlledSource) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
