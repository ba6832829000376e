// Package plist implements an immutable, structurally shared singly-linked list.
//
// Lists are values: prepending to a list or removing an element from it produces a new list that
// shares as many nodes as possible with the original, and no operation ever modifies a node once
// it has been created. This makes it safe to hand the same list, or any of its tails, to many
// concurrent readers without copying or locking.
package plist

import (
	"fmt"
	"strings"
)

type node[T any] struct {
	value T
	next  *node[T]
	len   int
}

// List is an immutable singly-linked list. The zero value is the empty list.
type List[T any] struct {
	head *node[T]
}

// Empty returns the empty list.
func Empty[T any]() List[T] { return List[T]{} }

// New creates a list holding the given items in order.
func New[T any](items ...T) List[T] {
	l := Empty[T]()
	for i := len(items) - 1; i >= 0; i-- {
		l = l.Cons(items[i])
	}
	return l
}

// Cons returns a new list with v prepended to l. The new list shares all of l.
func (l List[T]) Cons(v T) List[T] {
	return List[T]{head: &node[T]{value: v, next: l.head, len: l.Len() + 1}}
}

// IsEmpty returns true if the list has no elements.
func (l List[T]) IsEmpty() bool { return l.head == nil }

// Len returns the number of elements in the list in O(1).
func (l List[T]) Len() int {
	if l.head == nil {
		return 0
	}
	return l.head.len
}

// Head returns the first element of the list. The second return value is false if the list is
// empty.
func (l List[T]) Head() (T, bool) {
	if l.head == nil {
		var zero T
		return zero, false
	}
	return l.head.value, true
}

// Tail returns the list without its first element. The tail of the empty list is the empty list.
func (l List[T]) Tail() List[T] {
	if l.head == nil {
		return l
	}
	return List[T]{head: l.head.next}
}

// At returns the i-th element of the list.
func (l List[T]) At(i int) (T, bool) {
	for n := l.head; n != nil; n = n.next {
		if i == 0 {
			return n.value, true
		}
		i--
	}
	var zero T
	return zero, false
}

// RemoveAt returns a new list with the i-th element removed. Nodes before i are copied, nodes
// after i are shared with l. An out-of-range index returns l unchanged.
func (l List[T]) RemoveAt(i int) List[T] {
	if i < 0 || i >= l.Len() {
		return l
	}

	prefix := make([]T, 0, i)
	n := l.head
	for ; i > 0; i-- {
		prefix = append(prefix, n.value)
		n = n.next
	}

	ret := List[T]{head: n.next}
	for j := len(prefix) - 1; j >= 0; j-- {
		ret = ret.Cons(prefix[j])
	}
	return ret
}

// Each calls fn on the elements of the list in order until fn returns false.
func (l List[T]) Each(fn func(int, T) bool) {
	i := 0
	for n := l.head; n != nil; n = n.next {
		if !fn(i, n.value) {
			return
		}
		i++
	}
}

// Slice returns the elements of the list in a freshly allocated slice.
func (l List[T]) Slice() []T {
	ret := make([]T, 0, l.Len())
	for n := l.head; n != nil; n = n.next {
		ret = append(ret, n.value)
	}
	return ret
}

// SharesTail reports whether the two lists share their last k nodes. Mostly useful in tests.
func (l List[T]) SharesTail(other List[T], k int) bool {
	a, b := l.head, other.head
	if k > l.Len() || k > other.Len() {
		return false
	}
	for la := l.Len(); la > k; la-- {
		a = a.next
	}
	for lb := other.Len(); lb > k; lb-- {
		b = b.next
	}
	return a == b
}

func (l List[T]) String() string {
	parts := make([]string, 0, l.Len())
	for n := l.head; n != nil; n = n.next {
		parts = append(parts, fmt.Sprintf("%v", n.value))
	}
	return "(" + strings.Join(parts, " ") + ")"
}
