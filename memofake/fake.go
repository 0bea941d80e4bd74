package memofake

import (
	"context"
	"sync"
	"testing"

	"github.com/goforj/memo"
	"go.mongodb.org/mongo-driver/bson"
)

// Op identifies a store operation for assertions.
type Op string

const (
	OpEnsureIndex Op = "ensure_index"
	OpFind        Op = "find"
	OpInsert      Op = "insert"
	OpCount       Op = "count"
)

// Fake exposes a deterministic in-memory memo client plus assertion helpers for
// tests. Calls are counted per collection.
type Fake struct {
	client *memo.Client
	counts map[Op]map[string]int
	mu     sync.Mutex
}

// New creates a Fake over the memory store. opts configure the client.
func New(opts ...memo.Option) *Fake {
	store := &countingStore{inner: memo.NewMemoryStore(context.Background())}
	f := &Fake{counts: make(map[Op]map[string]int)}
	store.onCount = f.record
	f.client = memo.NewClient(store, opts...)
	return f
}

// Client returns the memo client to inject into code under test.
func (f *Fake) Client() *memo.Client { return f.client }

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies collection was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, collection string, times int) {
	t.Helper()
	if got := f.Count(op, collection); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, collection, times, got)
	}
}

// AssertNotCalled ensures collection was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, collection string) {
	t.Helper()
	if got := f.Count(op, collection); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, collection, got)
	}
}

// AssertStored ensures collection holds exactly n documents.
func (f *Fake) AssertStored(t *testing.T, collection string, n int64) {
	t.Helper()
	got, err := f.client.Store().Count(context.Background(), collection, nil)
	if err != nil {
		t.Fatalf("count %q: %v", collection, err)
	}
	if got != n {
		t.Fatalf("expected %d documents in %q, got %d", n, collection, got)
	}
}

// Count returns calls for op+collection.
func (f *Fake) Count(op Op, collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op][collection]
}

// Total returns total calls for an op across collections.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, collection string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][collection]++
}

// countingStore wraps a Store to record calls. Count calls made by the Fake's
// own assertions are recorded too.
type countingStore struct {
	inner   memo.Store
	onCount func(Op, string)
}

func (s *countingStore) Driver() memo.Driver { return s.inner.Driver() }

func (s *countingStore) Ready(ctx context.Context) error { return s.inner.Ready(ctx) }

func (s *countingStore) EnsureIndex(ctx context.Context, collection string, keys []string) error {
	s.bump(OpEnsureIndex, collection)
	return s.inner.EnsureIndex(ctx, collection, keys)
}

func (s *countingStore) FindOne(ctx context.Context, collection string, filter memo.Doc) (bson.Raw, bool, error) {
	s.bump(OpFind, collection)
	return s.inner.FindOne(ctx, collection, filter)
}

func (s *countingStore) Insert(ctx context.Context, collection string, doc memo.Doc) error {
	s.bump(OpInsert, collection)
	return s.inner.Insert(ctx, collection, doc)
}

func (s *countingStore) Count(ctx context.Context, collection string, filter memo.Doc) (int64, error) {
	s.bump(OpCount, collection)
	return s.inner.Count(ctx, collection, filter)
}

func (s *countingStore) Namespace(collection string) string { return s.inner.Namespace(collection) }

func (s *countingStore) Close(ctx context.Context) error { return s.inner.Close(ctx) }

func (s *countingStore) bump(op Op, collection string) {
	if s.onCount != nil {
		s.onCount(op, collection)
	}
}
