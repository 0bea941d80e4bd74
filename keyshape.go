package memo

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrKeyShape reports kwargs that do not match the declared key shape.
	ErrKeyShape = errors.New("memo: key shape mismatch")
	// ErrReservedField reports kwargs using a field name the entry layout reserves.
	ErrReservedField = errors.New("memo: reserved key field")
)

// KeyField declares one named key of a memoized call. A nil Type accepts any value.
type KeyField struct {
	Name string
	Type reflect.Type
}

// Key declares a key field whose values must be assignable to T.
// @group Memoization
//
// Example: declare a key shape
//
//	shape := []memo.KeyField{memo.Key[string]("word"), memo.Key[int]("limit")}
//	fmt.Println(len(shape)) // 2
func Key[T any](name string) KeyField {
	return KeyField{Name: name, Type: reflect.TypeOf((*T)(nil)).Elem()}
}

// checkKwargs rejects reserved or duplicate names, and when shape is non-empty
// any difference in names, order or value types.
func checkKwargs(kwargs Doc, shape []KeyField) error {
	seen := make(map[string]struct{}, len(kwargs))
	for _, e := range kwargs {
		if e.Key == valueField || e.Key == idField {
			return fmt.Errorf("%w: %q", ErrReservedField, e.Key)
		}
		if _, dup := seen[e.Key]; dup {
			return fmt.Errorf("%w: duplicate key %q", ErrKeyShape, e.Key)
		}
		seen[e.Key] = struct{}{}
	}
	if len(shape) == 0 {
		return nil
	}
	if len(kwargs) != len(shape) {
		return fmt.Errorf("%w: want %d keys, got %d", ErrKeyShape, len(shape), len(kwargs))
	}
	for i, field := range shape {
		e := kwargs[i]
		if e.Key != field.Name {
			return fmt.Errorf("%w: key %d is %q, want %q", ErrKeyShape, i+1, e.Key, field.Name)
		}
		if field.Type == nil {
			continue
		}
		if !assignable(e.Value, field.Type) {
			return fmt.Errorf("%w: key %q has type %T, want %s", ErrKeyShape, e.Key, e.Value, field.Type)
		}
	}
	return nil
}

func assignable(v any, t reflect.Type) bool {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map:
			return true
		default:
			return false
		}
	}
	return reflect.TypeOf(v).AssignableTo(t)
}

func keyNames(kwargs Doc) []string {
	names := make([]string, 0, len(kwargs))
	for _, e := range kwargs {
		names = append(names, e.Key)
	}
	return names
}
