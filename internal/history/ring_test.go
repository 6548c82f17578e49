package history

import (
	"reflect"
	"testing"
)

func TestRingEvictsOldestFirst(t *testing.T) {
	r := NewRing[int](3)

	for i := 1; i <= 5; i++ {
		r.Append(i)
	}

	if got := r.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	if got, want := r.Last(0), []int{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("Last(0) = %v, want %v (oldest evicted first)", got, want)
	}
}

func TestRingLast(t *testing.T) {
	r := NewRing[string](4)
	for _, s := range []string{"a", "b", "c"} {
		r.Append(s)
	}

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{name: "subset returns newest entries in order", n: 2, want: []string{"b", "c"}},
		{name: "n larger than count returns all", n: 10, want: []string{"a", "b", "c"}},
		{name: "zero returns all", n: 0, want: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Last(tt.n); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Last(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestRingEmpty(t *testing.T) {
	r := NewRing[int](2)
	if got := r.Last(5); len(got) != 0 {
		t.Errorf("Last() on empty ring = %v, want empty", got)
	}
}

func TestNewRingRejectsZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewRing(0) should panic")
		}
	}()
	NewRing[int](0)
}
