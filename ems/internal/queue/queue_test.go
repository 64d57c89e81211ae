package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnboundedFIFOOrder(t *testing.T) {
	q := NewUnbounded[int]()
	for i := 0; i < 5; i++ {
		q.Put(i)
	}
	require.Equal(t, 5, q.Len())
	for i := 0; i < 5; i++ {
		v, ok := q.Get()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.True(t, q.Empty())
}

func TestUnboundedGetBlocksUntilPut(t *testing.T) {
	q := NewUnbounded[string]()
	done := make(chan string, 1)
	go func() {
		v, ok := q.Get()
		if !ok {
			done <- "closed"
			return
		}
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	q.Put("hello")

	select {
	case v := <-done:
		require.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("Get never returned")
	}
}

func TestUnboundedCloseWakesBlockedGet(t *testing.T) {
	q := NewUnbounded[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Get()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Close")
	}
}

func TestUnboundedTryGet(t *testing.T) {
	q := NewUnbounded[int]()
	_, ok := q.TryGet()
	require.False(t, ok)

	q.Put(42)
	v, ok := q.TryGet()
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestUnboundedPutAfterCloseIsNoop(t *testing.T) {
	q := NewUnbounded[int]()
	q.Close()
	q.Put(1)
	_, ok := q.Get()
	require.False(t, ok)
}
