package memo

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/cespare/xxhash/v2"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	valueField = "value"
	idField    = "_id"
)

// keyFields returns the identifying fields of doc: everything except value and _id.
func keyFields(doc Doc) Doc {
	out := make(Doc, 0, len(doc))
	for _, e := range doc {
		if e.Key == valueField || e.Key == idField {
			continue
		}
		out = append(out, e)
	}
	return out
}

// canonicalBytes encodes doc with fields sorted by name and numbers widened, so
// equal key sets encode identically regardless of field order or Go int width.
func canonicalBytes(doc Doc, withValue bool) ([]byte, error) {
	fields := make(Doc, 0, len(doc))
	for _, e := range doc {
		if e.Key == idField || (!withValue && e.Key == valueField) {
			continue
		}
		fields = append(fields, Elem{Key: e.Key, Value: normalizeValue(e.Value)})
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return bson.Marshal(fields)
}

// keyDigest addresses an entry in stores without native document filters.
func keyDigest(doc Doc) (string, error) {
	body, err := canonicalBytes(doc, false)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(body)), nil
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n)
		}
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
	case float32:
		return wholeFloat(float64(n))
	case float64:
		return wholeFloat(n)
	}
	return canonicalValue(v)
}

// wholeFloat turns integral floats into int64 so 1 and 1.0 address the same entry.
func wholeFloat(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

// storeDoc is the form of doc every driver encodes: never nil, with nested
// maps rewritten as key-sorted documents so equal keys encode to equal bytes.
func storeDoc(doc Doc) Doc {
	out := make(Doc, 0, len(doc))
	for _, e := range doc {
		out = append(out, Elem{Key: e.Key, Value: canonicalValue(e.Value)})
	}
	return out
}

// canonicalValue replaces string-keyed maps, at any depth, with documents
// sorted by key. Other values are returned as is.
func canonicalValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, []byte, bson.Raw:
		return v
	case bson.D:
		return storeDoc(x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return v
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		out := make(Doc, 0, len(keys))
		for _, k := range keys {
			out = append(out, Elem{Key: k.String(), Value: canonicalValue(rv.MapIndex(k).Interface())})
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return v
		}
		switch rv.Type().Elem().Kind() {
		case reflect.Map, reflect.Interface, reflect.Slice:
		default:
			return v
		}
		out := make(bson.A, rv.Len())
		for i := range out {
			out[i] = canonicalValue(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

// matchDoc reports whether stored has exactly the key fields of filter with
// equal values. A value field in filter must match too.
func matchDoc(filter Doc, stored bson.Raw) (bool, error) {
	elems, err := stored.Elements()
	if err != nil {
		return false, err
	}
	storedKeys := 0
	for _, e := range elems {
		if k := e.Key(); k != valueField && k != idField {
			storedKeys++
		}
	}
	filterKeys := 0
	for _, f := range filter {
		if f.Key == idField {
			continue
		}
		if f.Key != valueField {
			filterKeys++
		}
		rv, err := stored.LookupErr(f.Key)
		if err != nil {
			return false, nil
		}
		eq, err := valueEqual(f.Value, rv)
		if err != nil || !eq {
			return false, err
		}
	}
	return filterKeys == storedKeys, nil
}

func valueEqual(v any, got bson.RawValue) (bool, error) {
	want := bson.RawValue{Type: bson.TypeNull}
	if v != nil {
		t, data, err := bson.MarshalValue(normalizeValue(v))
		if err != nil {
			return false, err
		}
		want = bson.RawValue{Type: t, Value: data}
	}
	if a, ok := numericValue(want); ok {
		if b, ok := numericValue(got); ok {
			return a == b, nil
		}
		return false, nil
	}
	return want.Type == got.Type && bytes.Equal(want.Value, got.Value), nil
}

func numericValue(rv bson.RawValue) (float64, bool) {
	switch rv.Type {
	case bson.TypeInt32:
		return float64(rv.Int32()), true
	case bson.TypeInt64:
		return float64(rv.Int64()), true
	case bson.TypeDouble:
		return rv.Double(), true
	default:
		return 0, false
	}
}

func cloneRaw(raw bson.Raw) bson.Raw {
	if raw == nil {
		return nil
	}
	out := make(bson.Raw, len(raw))
	copy(out, raw)
	return out
}
