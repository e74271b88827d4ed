package pool

import "sync"

// Unbounded disables the capacity limit of the Stack.
const Unbounded = -1

// Stack is a LIFO pool of reusable objects guarded by a mutex. Unlike sync.Pool, objects
// are never dropped by the runtime, and the pool refuses objects beyond its capacity.
type Stack[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
}

func NewStack[T any](capacity int) *Stack[T] {
	prealloc := capacity
	if prealloc < 0 || prealloc > 256 {
		prealloc = 256
	}

	return &Stack[T]{
		items:    make([]T, 0, prealloc),
		capacity: capacity,
	}
}

// Pop returns the most recently pushed object. The second return value is false if the
// stack is empty.
func (s *Stack[T]) Pop() (obj T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return obj, false
	}

	obj = s.items[len(s.items)-1]
	var zero T
	s.items[len(s.items)-1] = zero
	s.items = s.items[:len(s.items)-1]

	return obj, true
}

// Push returns false if the object was refused because the stack is at its capacity.
func (s *Stack[T]) Push(obj T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity != Unbounded && len(s.items) >= s.capacity {
		return false
	}

	s.items = append(s.items, obj)
	return true
}

// Clear drops all the objects, passing each to the callback (if not nil).
func (s *Stack[T]) Clear(onDrop func(T)) {
	s.mu.Lock()
	items := s.items
	s.items = make([]T, 0, cap(items))
	s.mu.Unlock()

	if onDrop != nil {
		for _, obj := range items {
			onDrop(obj)
		}
	}
}

func (s *Stack[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Stack[T]) Cap() int {
	return s.capacity
}
