/*
Copyright 2025 The goARRG Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package container

import "slices"

// Queue is a FIFO that also allows removing queued elements out of order.
type Queue[E any] struct {
	data []E
	head int
}

func (q *Queue[E]) Data() []E {
	return slices.Clone(q.data[q.head:])
}

func (q *Queue[E]) Len() int {
	return len(q.data) - q.head
}

func (q *Queue[E]) Empty() bool {
	return q.Len() == 0
}

func (q *Queue[E]) Push(e E) {
	q.data = append(q.data, e)
}

func (q *Queue[E]) Pop() E {
	if q.Empty() {
		panic("Pop called on empty queue")
	}
	e := q.data[q.head]
	var zero E
	q.data[q.head] = zero
	q.head++
	if q.head == len(q.data) {
		q.data = q.data[:0]
		q.head = 0
	}
	return e
}

func (q *Queue[E]) Peek() E {
	if q.Empty() {
		panic("Peek called on empty queue")
	}
	return q.data[q.head]
}

// LastIndexFunc returns the position from the front of the last element satisfying f, or -1.
func (q *Queue[E]) LastIndexFunc(f func(E) bool) int {
	for i := len(q.data) - 1; i >= q.head; i-- {
		if f(q.data[i]) {
			return i - q.head
		}
	}
	return -1
}

func (q *Queue[E]) At(i int) E {
	return q.data[q.head+i]
}

// Remove deletes the element at position i from the front, keeping the order of the rest.
func (q *Queue[E]) Remove(i int) E {
	e := q.data[q.head+i]
	q.data = slices.Delete(q.data, q.head+i, q.head+i+1)
	if q.head == len(q.data) {
		q.data = q.data[:0]
		q.head = 0
	}
	return e
}

func (q *Queue[E]) Clear() {
	clear(q.data)
	q.data = q.data[:0]
	q.head = 0
}
