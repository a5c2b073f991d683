package trfifo

import "testing"

func TestQueueBasics(t *testing.T) {
	q := New[int](3)
	if q.Cap() != 3 {
		t.Fatalf("Cap() = %d, want 3", q.Cap())
	}
	if q.Readable() {
		t.Fatal("empty queue reports Readable")
	}
	if !q.Writable() {
		t.Fatal("empty queue reports not Writable")
	}

	for i, v := range []int{1, 2, 3} {
		if !q.Push(v) {
			t.Fatalf("Push(%d) (index %d) failed unexpectedly", v, i)
		}
	}
	if q.Writable() {
		t.Fatal("full queue reports Writable")
	}
	if q.Push(4) {
		t.Fatal("Push succeeded on a full queue")
	}

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if q.Readable() {
		t.Fatal("drained queue reports Readable")
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop succeeded on an empty queue")
	}
}

func TestQueueWrapsAround(t *testing.T) {
	q := New[byte](4)
	q.Push('a')
	q.Push('b')
	q.Pop()
	q.Pop()
	q.Push('c')
	q.Push('d')
	q.Push('e')
	q.Push('f')
	if q.Writable() {
		t.Fatal("queue should be full after wrapping")
	}
	var got []byte
	for q.Readable() {
		v, _ := q.Pop()
		got = append(got, v)
	}
	want := "cdef"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNewNonPositiveCapacity(t *testing.T) {
	q := New[int](0)
	if q.Cap() != 1 {
		t.Fatalf("Cap() = %d, want 1 for non-positive request", q.Cap())
	}
	q = New[int](-5)
	if q.Cap() != 1 {
		t.Fatalf("Cap() = %d, want 1 for non-positive request", q.Cap())
	}
}
