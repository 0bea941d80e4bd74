package memo

import (
	"context"
	"testing"
	"time"
)

func TestMongoURI(t *testing.T) {
	uri, endpoint, err := mongoURI(StoreConfig{Host: "localhost", Port: 1979})
	if err != nil {
		t.Fatalf("mongo uri: %v", err)
	}
	if uri != "mongodb://localhost:1979" || endpoint != "localhost:1979" {
		t.Fatalf("unexpected uri=%q endpoint=%q", uri, endpoint)
	}

	uri, endpoint, err = mongoURI(StoreConfig{URI: "mongodb://user:pw@db.internal:27018/?replicaSet=rs0", Host: "ignored"})
	if err != nil {
		t.Fatalf("mongo uri: %v", err)
	}
	if uri != "mongodb://user:pw@db.internal:27018/?replicaSet=rs0" || endpoint != "db.internal:27018" {
		t.Fatalf("unexpected uri=%q endpoint=%q", uri, endpoint)
	}

	if _, _, err := mongoURI(StoreConfig{URI: "mongodb://%zz"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMongoStoreNamespaceAndPooling(t *testing.T) {
	ctx := context.Background()
	a := NewMongoStore(ctx, "localhost", 1979, WithDatabase("relations"))
	b := NewMongoStore(ctx, "localhost", 1979, WithDatabase("other"))
	if got := a.Namespace("pairs"); got != "localhost:1979/relations.pairs" {
		t.Fatalf("unexpected namespace %q", got)
	}
	ma, ok := a.(*mongoStore)
	if !ok {
		t.Fatalf("expected mongo store, got %T", a)
	}
	mb := b.(*mongoStore)
	if ma.client != mb.client {
		t.Fatalf("expected one client per endpoint")
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("close a: %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("second close must be a no-op: %v", err)
	}
	mongoClients.mu.Lock()
	pooled := mongoClients.clients["mongodb://localhost:1979"]
	mongoClients.mu.Unlock()
	if pooled == nil || pooled.refs != 1 {
		t.Fatalf("expected the second holder to keep the client alive, got %+v", pooled)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("close b: %v", err)
	}
	mongoClients.mu.Lock()
	_, still := mongoClients.clients["mongodb://localhost:1979"]
	mongoClients.mu.Unlock()
	if still {
		t.Fatalf("expected client released after last close")
	}
}

func TestMemoizeUnreachableMongoFallsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMongoStore(ctx, "127.0.0.1", 1, WithConnectTimeout(100*time.Millisecond))
	c := NewClient(store)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	calls := 0
	double := Memoize(c, "numbers", func(_ context.Context, _ []any, kw Doc) (int, error) {
		calls++
		return kw[0].Value.(int) * 2, nil
	})
	for i := 0; i < 2; i++ {
		got, err := double(ctx, nil, Doc{{Key: "x", Value: 21}})
		if err != nil || got != 42 {
			t.Fatalf("expected 42 from fallback, got %d err=%v", got, err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected the function to run on every call, got %d", calls)
	}
	if err := c.Ready(ctx); err == nil {
		t.Fatalf("expected ready to report the unreachable server")
	}
}
