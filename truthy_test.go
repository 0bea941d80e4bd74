package memo

import "testing"

func TestTruthy(t *testing.T) {
	zero := 0
	type point struct{ X, Y int }
	cases := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0, false},
		{int8(-1), true},
		{uint(0), false},
		{uint64(3), true},
		{0.0, false},
		{float32(0.1), true},
		{"", false},
		{"x", true},
		{[]int{}, false},
		{[]int{0}, true},
		{map[string]int{}, false},
		{map[string]int{"a": 0}, true},
		{[0]int{}, false},
		{[1]int{}, true},
		{(*int)(nil), false},
		{&zero, true},
		{point{}, true},
		{point{X: 1}, true},
		{Doc{}, false},
		{Doc{{Key: "a", Value: 1}}, true},
	}
	for _, tc := range cases {
		if got := Truthy(tc.v); got != tc.want {
			t.Fatalf("Truthy(%#v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}
