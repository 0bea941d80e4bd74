package memotest

import (
	"context"
	"strings"
	"testing"

	"github.com/goforj/memo/memocore"
	"go.mongodb.org/mongo-driver/bson"
)

// Options configures shared store contract checks.
type Options struct {
	// CaseName is used to namespace collections. Defaults to t.Name().
	CaseName string
	// NullSemantics enables relaxed expectations for the null store.
	NullSemantics bool
	// SkipCloneCheck disables the "find returns a copy" assertion.
	SkipCloneCheck bool
}

// Store is the minimal contract required by RunStoreContract.
type Store = memocore.Store

type doc = memocore.Doc
type elem = memocore.Elem

// RunStoreContract runs a backend-agnostic store contract suite.
func RunStoreContract(t *testing.T, store Store, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ctx := context.Background()
	coll := sanitize(caseName)
	other := coll + "_other"

	if err := store.Ready(ctx); err != nil {
		t.Fatalf("ready failed: %v", err)
	}
	if ns := store.Namespace(coll); !strings.Contains(ns, coll) {
		t.Fatalf("expected namespace to name collection %q, got %q", coll, ns)
	}

	// Index declaration is idempotent.
	for i := 0; i < 2; i++ {
		if err := store.EnsureIndex(ctx, coll, []string{"x", "y"}); err != nil {
			t.Fatalf("ensure index (pass %d) failed: %v", i, err)
		}
	}

	key := doc{{Key: "x", Value: 1}, {Key: "y", Value: "a"}}
	if _, ok, err := store.FindOne(ctx, coll, key); err != nil || ok {
		t.Fatalf("expected miss on empty collection; ok=%v err=%v", ok, err)
	}

	entry := append(append(doc{}, key...), elem{Key: "value", Value: "v1"})
	if err := store.Insert(ctx, coll, entry); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if opts.NullSemantics {
		if _, ok, err := store.FindOne(ctx, coll, key); err != nil || ok {
			t.Fatalf("expected miss for null semantics; ok=%v err=%v", ok, err)
		}
		if n, err := store.Count(ctx, coll, nil); err != nil || n != 0 {
			t.Fatalf("expected null count=0, got %d err=%v", n, err)
		}
		return
	}

	// Exact key hit.
	raw, ok, err := store.FindOne(ctx, coll, key)
	if err != nil || !ok {
		t.Fatalf("expected hit; ok=%v err=%v", ok, err)
	}
	if got := stringValue(t, raw); got != "v1" {
		t.Fatalf("expected value v1, got %q", got)
	}

	// Field order and integer width do not change identity.
	reordered := doc{{Key: "y", Value: "a"}, {Key: "x", Value: int32(1)}}
	if _, ok, err := store.FindOne(ctx, coll, reordered); err != nil || !ok {
		t.Fatalf("expected hit for reordered key; ok=%v err=%v", ok, err)
	}

	// Whole floats address the same entry as integers, for FindOne and Count alike.
	widened := doc{{Key: "x", Value: 1.0}, {Key: "y", Value: "a"}}
	if _, ok, err := store.FindOne(ctx, coll, widened); err != nil || !ok {
		t.Fatalf("expected hit for whole float key; ok=%v err=%v", ok, err)
	}
	if n, err := store.Count(ctx, coll, widened); err != nil || n != 1 {
		t.Fatalf("expected whole float count=1, got %d err=%v", n, err)
	}

	// Different values miss.
	if _, ok, err := store.FindOne(ctx, coll, doc{{Key: "x", Value: 2}, {Key: "y", Value: "a"}}); err != nil || ok {
		t.Fatalf("expected miss for different key; ok=%v err=%v", ok, err)
	}

	// A full document probe matches on value too.
	if _, ok, err := store.FindOne(ctx, coll, entry); err != nil || !ok {
		t.Fatalf("expected hit for full document; ok=%v err=%v", ok, err)
	}
	changed := append(append(doc{}, key...), elem{Key: "value", Value: "v2"})
	if _, ok, err := store.FindOne(ctx, coll, changed); err != nil || ok {
		t.Fatalf("expected miss for different value; ok=%v err=%v", ok, err)
	}

	// Collections are isolated.
	if _, ok, err := store.FindOne(ctx, other, key); err != nil || ok {
		t.Fatalf("expected miss in other collection; ok=%v err=%v", ok, err)
	}

	// Returned documents are copies.
	if !opts.SkipCloneCheck {
		for i := range raw {
			raw[i] = 0
		}
		again, ok, err := store.FindOne(ctx, coll, key)
		if err != nil || !ok {
			t.Fatalf("expected hit after mutating result; ok=%v err=%v", ok, err)
		}
		if got := stringValue(t, again); got != "v1" {
			t.Fatalf("expected stored value unchanged, got %q", got)
		}
	}

	// Duplicates are kept.
	if err := store.Insert(ctx, coll, entry); err != nil {
		t.Fatalf("duplicate insert failed: %v", err)
	}
	if err := store.Insert(ctx, coll, doc{{Key: "x", Value: 2}, {Key: "y", Value: "b"}, {Key: "value", Value: "v3"}}); err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if n, err := store.Count(ctx, coll, nil); err != nil || n != 3 {
		t.Fatalf("expected count=3, got %d err=%v", n, err)
	}
	if n, err := store.Count(ctx, coll, key); err != nil || n != 2 {
		t.Fatalf("expected filtered count=2, got %d err=%v", n, err)
	}
	if n, err := store.Count(ctx, other, nil); err != nil || n != 0 {
		t.Fatalf("expected empty other collection, got %d err=%v", n, err)
	}

	// Map values identify the same entry whatever their iteration order.
	maps := coll + "_maps"
	mapOpts := map[string]any{"a": 1, "b": "two", "c": true, "d": 4, "e": "five", "f": map[string]int{"g": 7, "h": 8}}
	if err := store.Insert(ctx, maps, doc{{Key: "opts", Value: mapOpts}, {Key: "value", Value: "m"}}); err != nil {
		t.Fatalf("insert map entry failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, ok, err := store.FindOne(ctx, maps, doc{{Key: "opts", Value: mapOpts}}); err != nil || !ok {
			t.Fatalf("expected hit for map key (pass %d); ok=%v err=%v", i, ok, err)
		}
	}
	if n, err := store.Count(ctx, maps, doc{{Key: "opts", Value: mapOpts}}); err != nil || n != 1 {
		t.Fatalf("expected map key count=1, got %d err=%v", n, err)
	}
}

func stringValue(t *testing.T, raw bson.Raw) string {
	t.Helper()
	rv, err := raw.LookupErr("value")
	if err != nil {
		t.Fatalf("stored document has no value: %v", err)
	}
	s, ok := rv.StringValueOK()
	if !ok {
		t.Fatalf("stored value is %s, want string", rv.Type)
	}
	return s
}

func sanitize(s string) string {
	r := strings.NewReplacer("/", "_", " ", "_", ".", "_", "$", "_")
	return r.Replace(s)
}
