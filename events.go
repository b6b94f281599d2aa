// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import "sync"

type ListenerId int

type listener[T any] struct {
	id ListenerId
	fn func(T)
}

// observers delivers notifications synchronously, in subscription order.
type observers[T any] struct {
	mu        sync.Mutex
	nextId    ListenerId
	listeners []listener[T]
}

// subscribe returns the new listener id and the number of listeners.
func (o *observers[T]) subscribe(fn func(T)) (ListenerId, int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextId++
	o.listeners = append(o.listeners, listener[T]{id: o.nextId, fn: fn})

	return o.nextId, len(o.listeners)
}

// unsubscribe returns the number of listeners left.
func (o *observers[T]) unsubscribe(id ListenerId) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, l := range o.listeners {
		if l.id == id {
			o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
			break
		}
	}

	return len(o.listeners)
}

func (o *observers[T]) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.listeners)
}

func (o *observers[T]) emit(value T) {
	o.mu.Lock()
	current := make([]listener[T], len(o.listeners))
	copy(current, o.listeners)
	o.mu.Unlock()

	for _, l := range current {
		l.fn(value)
	}
}
