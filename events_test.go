// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package godap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserversOrder(t *testing.T) {
	var o observers[int]
	var calls []string

	o.subscribe(func(v int) { calls = append(calls, "first") })
	o.subscribe(func(v int) { calls = append(calls, "second") })

	o.emit(1)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestObserversUnsubscribe(t *testing.T) {
	var o observers[int]
	sum := 0

	first, count := o.subscribe(func(v int) { sum += v })
	assert.Equal(t, 1, count)

	second, count := o.subscribe(func(v int) { sum += 10 * v })
	assert.Equal(t, 2, count)
	assert.NotEqual(t, first, second)

	assert.Equal(t, 1, o.unsubscribe(first))
	assert.Equal(t, 1, o.unsubscribe(first))

	o.emit(2)
	assert.Equal(t, 20, sum)

	assert.Equal(t, 0, o.unsubscribe(second))
	assert.Equal(t, 0, o.count())
}

func TestObserversUnsubscribeWhileEmitting(t *testing.T) {
	var o observers[string]
	var id ListenerId
	calls := 0

	id, _ = o.subscribe(func(string) {
		calls++
		o.unsubscribe(id)
	})
	o.subscribe(func(string) { calls++ })

	o.emit("a")
	o.emit("b")

	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, o.count())
}
