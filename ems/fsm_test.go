package ems

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSMBasicTransition(t *testing.T) {
	var forwarded []string
	m := Matrix{
		"Init": Row{
			"go": {"Running", func(any) { forwarded = append(forwarded, "go") }},
		},
		"Running": Row{
			"stop": {"Init", func(any) { forwarded = append(forwarded, "stop") }},
		},
	}
	f := NewFSM(m, nil, "Init")
	f.HandleEvent("go", nil)
	state, _ := f.State()
	require.Equal(t, "Running", state)

	f.HandleEvent("stop", nil)
	state, _ = f.State()
	require.Equal(t, "Init", state)
	require.Equal(t, []string{"go", "stop"}, forwarded)
}

func TestFSMUnknownStimulusIsIgnored(t *testing.T) {
	m := Matrix{
		"Init": Row{
			"go": {"Running", func(any) {}},
		},
	}
	f := NewFSM(m, nil, "Init")
	f.HandleEvent("nope", nil)
	state, _ := f.State()
	require.Equal(t, "Init", state)
}

func TestFSMRevertRestoresPreviousState(t *testing.T) {
	m := Matrix{
		"A": Row{"next": {"B", func(any) {}}},
		"B": Row{"back": {Revert, func(any) {}}},
	}
	f := NewFSM(m, nil, "A")
	f.HandleEvent("next", nil)
	state, _ := f.State()
	require.Equal(t, "B", state)

	f.HandleEvent("back", nil)
	state, _ = f.State()
	require.Equal(t, "A", state)
}

func TestFSMStateActionFalseSkipsEventAction(t *testing.T) {
	ran := false
	m := Matrix{
		"Init": Row{"go": {"Running", func(any) { ran = true }}},
	}
	sa := StateActions{
		"Init": func() bool { return false },
	}
	f := NewFSM(m, sa, "Init")
	f.HandleEvent("go", nil)

	require.False(t, ran)
	state, _ := f.State()
	require.Equal(t, "Running", state, "transition still commits even when the event action is skipped")
}

func TestFSMStateActionSeesNextState(t *testing.T) {
	var seen string
	m := Matrix{
		"Init": Row{"go": {"Running", func(any) {}}},
	}
	sa := StateActions{
		"Init": func() bool { return true },
	}
	f := NewFSM(m, sa, "Init")
	// Wrap after construction so the closure can read f.NextState().
	sa["Init"] = func() bool {
		seen = f.NextState()
		return true
	}
	f.HandleEvent("go", nil)
	require.Equal(t, "Running", seen)
}

func TestFSMAugmentEventRunsBeforeQueuedDefaultEvents(t *testing.T) {
	var order []string
	var f *FSM
	m := Matrix{
		"Init": Row{
			"first": {"Init", func(any) {
				order = append(order, "first")
				f.AugmentEvent("bumped", nil)
			}},
			"bumped": {"Init", func(any) { order = append(order, "bumped") }},
			"second": {"Init", func(any) { order = append(order, "second") }},
		},
	}
	f = NewFSM(m, nil, "Init")
	f.ReportEvent("first", nil)
	f.HandleEvent("second", nil)

	require.Equal(t, []string{"first", "bumped", "second"}, order)
}

func TestFSMParameterizedEvent(t *testing.T) {
	var got any
	m := Matrix{
		"Init": Row{"tagged": {"Init", func(p any) { got = p }}},
	}
	f := NewFSM(m, nil, "Init")
	f.HandleEvent("tagged", 7)
	require.Equal(t, 7, got)
}

func TestFSMHandleEventSerializesConcurrentCallers(t *testing.T) {
	// Regression guard for the watchdog-vs-dispatcher race: concurrent
	// HandleEvent callers must not corrupt the transition count.
	var count int
	m := Matrix{
		"Init": Row{"tick": {"Init", func(any) { count++ }}},
	}
	f := NewFSM(m, nil, "Init")

	var wg sync.WaitGroup
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			f.HandleEvent("tick", nil)
		}()
	}
	wg.Wait()
	require.Equal(t, n, count)
}
