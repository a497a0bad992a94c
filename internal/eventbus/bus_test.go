package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New[string]()
	a, b := bus.Subscribe(), bus.Subscribe()

	assert.Equal(t, 2, bus.Publish("solved"))
	assert.Equal(t, "solved", <-a)
	assert.Equal(t, "solved", <-b)

	bus.Unsubscribe(a)
	_, ok := <-a
	assert.False(t, ok)
	assert.Equal(t, 1, bus.Publish("exported"))
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBuffered[int](1)
	ch := bus.Subscribe()

	assert.Equal(t, 1, bus.Publish(1))
	assert.Equal(t, 0, bus.Publish(2))
	assert.EqualValues(t, 1, bus.Dropped())
	assert.Equal(t, 1, <-ch)
}

func TestBus_Close(t *testing.T) {
	bus := New[int]()
	ch := bus.Subscribe()
	bus.Close()
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, bus.Publish(1))

	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	require.NotPanics(t, func() { bus.Unsubscribe(ch) })
}
