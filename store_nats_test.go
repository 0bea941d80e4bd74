package memo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goforj/memo/memotest"
	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/bson"
)

func TestNATSStoreNilKeyValueErrors(t *testing.T) {
	store := newNATSStore(nil, StoreConfig{})
	ctx := context.Background()

	if err := store.Ready(ctx); err == nil {
		t.Fatalf("expected ready error when nats key-value is nil")
	}
	if _, _, err := store.FindOne(ctx, "c", Doc{{Key: "x", Value: 1}}); err == nil {
		t.Fatalf("expected find error when nats key-value is nil")
	}
	if err := store.Insert(ctx, "c", Doc{{Key: "x", Value: 1}}); err == nil {
		t.Fatalf("expected insert error when nats key-value is nil")
	}
	if _, err := store.Count(ctx, "c", nil); err == nil {
		t.Fatalf("expected count error when nats key-value is nil")
	}
}

func TestNATSStoreContractWithStubKV(t *testing.T) {
	store := newNATSStore(newStubNATSKeyValue("bucket"), testStoreConfig("memo", "pfx"))
	memotest.RunStoreContract(t, store, memotest.Options{CaseName: t.Name()})
}

func TestNATSStoreAppendsToDigestBucket(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	store := newNATSStore(kv, testStoreConfig("db", "pfx")).(*natsStore)

	doc := Doc{{Key: "x", Value: 1}, {Key: "value", Value: "v"}}
	for i := 0; i < 2; i++ {
		if err := store.Insert(ctx, "pairs", doc); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}
	digest, _ := keyDigest(doc)
	entry, ok := kv.entries[store.bucketKey("pairs", digest)]
	if !ok {
		t.Fatalf("expected bucket entry, got keys %v", kv.keys())
	}
	var bucket natsBucket
	if err := bson.Unmarshal(entry.value, &bucket); err != nil {
		t.Fatalf("decode bucket: %v", err)
	}
	if len(bucket.Docs) != 2 {
		t.Fatalf("expected two documents in bucket, got %d", len(bucket.Docs))
	}
	if len(kv.entries) != 1 {
		t.Fatalf("expected a single key, got %v", kv.keys())
	}
}

func TestNATSStoreInsertRetriesOnRevisionConflict(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	kv.conflicts = 2
	store := newNATSStore(kv, testStoreConfig("db", "pfx"))

	doc := Doc{{Key: "x", Value: 1}, {Key: "value", Value: "v"}}
	if err := store.Insert(ctx, "pairs", doc); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if kv.conflicts != 0 {
		t.Fatalf("expected conflicts to be consumed, %d left", kv.conflicts)
	}
	if _, ok, err := store.FindOne(ctx, "pairs", Doc{{Key: "x", Value: 1}}); err != nil || !ok {
		t.Fatalf("expected hit after retried insert; ok=%v err=%v", ok, err)
	}
}

func TestNATSStoreInsertGivesUpAfterRetryLimit(t *testing.T) {
	kv := newStubNATSKeyValue("bucket")
	kv.conflicts = natsAppendMaxAttempts
	store := newNATSStore(kv, StoreConfig{})
	if err := store.Insert(context.Background(), "c", Doc{{Key: "x", Value: 1}}); err == nil {
		t.Fatalf("expected retry limit error")
	}
}

func TestNATSStoreErrorPropagation(t *testing.T) {
	ctx := context.Background()
	kv := newStubNATSKeyValue("bucket")
	kv.getErr = errors.New("get")
	store := newNATSStore(kv, StoreConfig{})
	if _, _, err := store.FindOne(ctx, "c", Doc{{Key: "x", Value: 1}}); err == nil {
		t.Fatalf("expected find error")
	}

	kv = newStubNATSKeyValue("bucket")
	kv.createErr = errors.New("create")
	store = newNATSStore(kv, StoreConfig{})
	if err := store.Insert(ctx, "c", Doc{{Key: "x", Value: 1}}); err == nil {
		t.Fatalf("expected insert error")
	}

	kv = newStubNATSKeyValue("bucket")
	kv.listErr = errors.New("list")
	store = newNATSStore(kv, StoreConfig{})
	if _, err := store.Count(ctx, "c", nil); err == nil {
		t.Fatalf("expected count error")
	}

	kv = newStubNATSKeyValue("bucket")
	kv.listErr = nats.ErrNoKeysFound
	store = newNATSStore(kv, StoreConfig{})
	if n, err := store.Count(ctx, "c", nil); err != nil || n != 0 {
		t.Fatalf("expected empty count for no keys, got %d err=%v", n, err)
	}
}

func TestEncodeNATSKeyPart(t *testing.T) {
	if got := encodeNATSKeyPart(""); got != "_" {
		t.Fatalf("expected placeholder for empty part, got %q", got)
	}
	if got := encodeNATSKeyPart("a.b c"); got == "a.b c" || got == "" {
		t.Fatalf("expected encoded key part, got %q", got)
	}
}

type stubNATSKeyValue struct {
	bucket string
	rev    uint64

	entries map[string]*stubNATSKeyValueEntry

	// conflicts makes the next n writes fail as if another writer won.
	conflicts int

	getErr    error
	createErr error
	updateErr error
	listErr   error
}

func newStubNATSKeyValue(bucket string) *stubNATSKeyValue {
	return &stubNATSKeyValue{
		bucket:  bucket,
		entries: make(map[string]*stubNATSKeyValueEntry),
	}
}

func (s *stubNATSKeyValue) keys() []string {
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

func (s *stubNATSKeyValue) Get(key string) (nats.KeyValueEntry, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	return entry.clone(), nil
}

func (s *stubNATSKeyValue) put(key string, value []byte) (uint64, error) {
	s.rev++
	s.entries[key] = &stubNATSKeyValueEntry{
		bucket:   s.bucket,
		key:      key,
		value:    append([]byte(nil), value...),
		revision: s.rev,
		created:  time.Now(),
		op:       nats.KeyValuePut,
	}
	return s.rev, nil
}

func (s *stubNATSKeyValue) conflict() bool {
	if s.conflicts > 0 {
		s.conflicts--
		return true
	}
	return false
}

func (s *stubNATSKeyValue) Create(key string, value []byte) (uint64, error) {
	if s.createErr != nil {
		return 0, s.createErr
	}
	if s.conflict() {
		return 0, nats.ErrKeyExists
	}
	if _, ok := s.entries[key]; ok {
		return 0, nats.ErrKeyExists
	}
	return s.put(key, value)
}

func (s *stubNATSKeyValue) Update(key string, value []byte, last uint64) (uint64, error) {
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	if s.conflict() {
		return 0, nats.ErrKeyExists
	}
	existing, ok := s.entries[key]
	if !ok {
		return 0, nats.ErrKeyNotFound
	}
	if existing.revision != last {
		return 0, nats.ErrKeyExists
	}
	return s.put(key, value)
}

func (s *stubNATSKeyValue) ListKeys(_ ...nats.WatchOpt) (nats.KeyLister, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return newStubNATSKeyLister(s.keys()), nil
}

type stubNATSKeyValueEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	delta    uint64
	op       nats.KeyValueOp
}

func (e *stubNATSKeyValueEntry) clone() *stubNATSKeyValueEntry {
	cp := *e
	cp.value = append([]byte(nil), e.value...)
	return &cp
}

func (e *stubNATSKeyValueEntry) Bucket() string             { return e.bucket }
func (e *stubNATSKeyValueEntry) Key() string                { return e.key }
func (e *stubNATSKeyValueEntry) Value() []byte              { return append([]byte(nil), e.value...) }
func (e *stubNATSKeyValueEntry) Revision() uint64           { return e.revision }
func (e *stubNATSKeyValueEntry) Created() time.Time         { return e.created }
func (e *stubNATSKeyValueEntry) Delta() uint64              { return e.delta }
func (e *stubNATSKeyValueEntry) Operation() nats.KeyValueOp { return e.op }

type stubNATSKeyLister struct {
	keysCh chan string
	errCh  chan error
}

func newStubNATSKeyLister(keys []string) *stubNATSKeyLister {
	keysCh := make(chan string, len(keys))
	errCh := make(chan error)
	for _, key := range keys {
		keysCh <- key
	}
	close(keysCh)
	close(errCh)
	return &stubNATSKeyLister{keysCh: keysCh, errCh: errCh}
}

func (l *stubNATSKeyLister) Keys() <-chan string { return l.keysCh }
func (l *stubNATSKeyLister) Error() <-chan error { return l.errCh }
func (l *stubNATSKeyLister) Stop() error         { return nil }
