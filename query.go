package memo

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	relField    = "rel"
	argFieldPfx = "arg"
)

// ErrMalformedQuery is returned by ParseQuery for documents MakeQuery cannot produce.
var ErrMalformedQuery = errors.New("memo: malformed canonical query")

// LabelArgs labels positional values as (arg1, v1), (arg2, v2), ... (argn, vn).
// Values keep their original types.
// @group Queries
//
// Example: label positional arguments
//
//	q := memo.LabelArgs(7, "b")
//	fmt.Println(q[0].Key, q[1].Key) // arg1 arg2
func LabelArgs(args ...any) Doc {
	out := make(Doc, 0, len(args))
	for i, v := range args {
		out = append(out, Elem{Key: argField(i + 1), Value: v})
	}
	return out
}

// MakeQuery builds the canonical query for args and an optional relation tag.
// rel leads when present so the document lines up with a compound index over
// (rel, arg1, ..., argn); a nil or empty rel is omitted.
// @group Queries
//
// Example: relation first, then labeled args
//
//	q := memo.MakeQuery([]any{7, "b"}, "R")
//	fmt.Println(q[0].Key, q[1].Key, q[2].Key) // rel arg1 arg2
func MakeQuery(args []any, rel any) Doc {
	q := make(Doc, 0, len(args)+1)
	if Truthy(rel) {
		q = append(q, Elem{Key: relField, Value: rel})
	}
	return append(q, LabelArgs(args...)...)
}

// ParseQuery recovers the positional values and relation tag from a canonical
// query. It is the inverse of MakeQuery.
// @group Queries
func ParseQuery(q Doc) ([]any, any, error) {
	var rel any
	fields := q
	if len(fields) > 0 && fields[0].Key == relField {
		rel = fields[0].Value
		fields = fields[1:]
	}
	args := make([]any, 0, len(fields))
	for i, e := range fields {
		if e.Key != argField(i+1) {
			return nil, nil, fmt.Errorf("%w: field %d is %q", ErrMalformedQuery, i+1, e.Key)
		}
		args = append(args, e.Value)
	}
	return args, rel, nil
}

// QueryIndexKeys lists the fields of a compound index matching MakeQuery output
// for n positional values.
// @group Queries
func QueryIndexKeys(n int, withRel bool) []string {
	keys := make([]string, 0, n+1)
	if withRel {
		keys = append(keys, relField)
	}
	for i := 1; i <= n; i++ {
		keys = append(keys, argField(i))
	}
	return keys
}

func argField(n int) string {
	return argFieldPfx + strconv.Itoa(n)
}
