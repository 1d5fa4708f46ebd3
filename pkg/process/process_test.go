package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgielen/why2025-clife-sub001/pkg/symtab"
)

func echoImage(argvOut chan<- []string) *Image {
	return &Image{
		Path: "FLASH0:ECHO.BIN",
		Entry: func(ctx context.Context, argv []string, heap *Heap) int {
			argvOut <- argv
			return 0
		},
	}
}

func TestSpawnRunsEntryAndIsWaitable(t *testing.T) {
	argvOut := make(chan []string, 1)
	reg := MapRegistry{"FLASH0:ECHO.BIN": echoImage(argvOut)}
	m := New(nil, nil, reg)

	pid, err := m.Spawn("FLASH0:ECHO.BIN", 4096, []string{"echo", "hi"})
	require.NoError(t, err)
	require.Greater(t, int(pid), 0)

	select {
	case argv := <-argvOut:
		require.Equal(t, []string{"echo", "hi"}, argv)
	case <-time.After(time.Second):
		t.Fatal("entry never ran")
	}
}

func TestSpawnUnknownImageFails(t *testing.T) {
	m := New(nil, nil, MapRegistry{})
	_, err := m.Spawn("FLASH0:MISSING.BIN", 4096, nil)
	require.ErrorIs(t, err, ErrImageNotFound)
}

func TestSpawnResolvesExternalSymbols(t *testing.T) {
	symbols := symtab.New(symtab.Symbol{Name: "badgevms_malloc", Address: 0x1000})
	blocked := make(chan struct{})
	reg := MapRegistry{
		"FLASH0:NEEDS_SYM.BIN": {
			Path:            "FLASH0:NEEDS_SYM.BIN",
			ExternalSymbols: []string{"badgevms_malloc"},
			Entry: func(ctx context.Context, argv []string, heap *Heap) int {
				close(blocked)
				return 0
			},
		},
	}
	m := New(nil, symbols, reg)

	_, err := m.Spawn("FLASH0:NEEDS_SYM.BIN", 4096, nil)
	require.NoError(t, err)

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("entry never ran")
	}
}

func TestSpawnUnresolvedSymbolFails(t *testing.T) {
	symbols := symtab.New()
	reg := MapRegistry{
		"FLASH0:BAD.BIN": {
			Path:            "FLASH0:BAD.BIN",
			ExternalSymbols: []string{"nonexistent_symbol"},
			Entry:           func(ctx context.Context, argv []string, heap *Heap) int { return 0 },
		},
	}
	m := New(nil, symbols, reg)

	_, err := m.Spawn("FLASH0:BAD.BIN", 4096, nil)
	require.ErrorIs(t, err, ErrSymbolUnresolved)
}

func TestSpawnChildIsReapedByWait(t *testing.T) {
	child := &Image{
		Path:  "FLASH0:CHILD.BIN",
		Entry: func(ctx context.Context, argv []string, heap *Heap) int { return 42 },
	}
	parentDone := make(chan Pid, 1)
	parent := &Image{
		Path: "FLASH0:PARENT.BIN",
		Entry: func(ctx context.Context, argv []string, heap *Heap) int {
			return 0
		},
	}
	reg := MapRegistry{"FLASH0:CHILD.BIN": child, "FLASH0:PARENT.BIN": parent}
	m := New(nil, nil, reg)

	parentPid, err := m.Spawn("FLASH0:PARENT.BIN", 4096, nil)
	require.NoError(t, err)

	childPid, err := m.SpawnChild(parentPid, "FLASH0:CHILD.BIN", 4096, nil)
	require.NoError(t, err)

	go func() {
		parentDone <- m.Wait(parentPid, true, 2*time.Second)
	}()

	select {
	case reaped := <-parentDone:
		require.Equal(t, childPid, reaped)
	case <-time.After(2 * time.Second):
		t.Fatal("wait never returned")
	}
}

func TestWaitNonBlockingReturnsImmediately(t *testing.T) {
	m := New(nil, nil, MapRegistry{})
	pid := m.Wait(1, false, 0)
	require.Equal(t, Pid(-1), pid)
}

func TestThreadCreateSharesParentHeap(t *testing.T) {
	longLived := make(chan struct{})
	parentImg := &Image{
		Path: "FLASH0:THREADY.BIN",
		Entry: func(ctx context.Context, argv []string, heap *Heap) int {
			<-longLived
			return 0
		},
	}
	reg := MapRegistry{"FLASH0:THREADY.BIN": parentImg}
	m := New(nil, nil, reg)

	parentPid, err := m.Spawn("FLASH0:THREADY.BIN", 4096, nil)
	require.NoError(t, err)

	parent, ok := m.Lookup(parentPid)
	require.True(t, ok)

	ran := make(chan *Heap, 1)
	_, err = m.ThreadCreate(parentPid, func(ctx context.Context, userData interface{}) {
		ran <- userData.(*Heap)
	}, parent.heap)
	require.NoError(t, err)

	select {
	case h := <-ran:
		require.Same(t, parent.heap, h)
	case <-time.After(time.Second):
		t.Fatal("thread never ran")
	}
	close(longLived)
}

func TestPriorityLowerRestoreStack(t *testing.T) {
	p := &Process{}
	p.priority = 5

	p.PriorityLower()
	require.Equal(t, 4, p.priority)
	p.PriorityLower()
	require.Equal(t, 3, p.priority)

	p.PriorityRestore()
	require.Equal(t, 4, p.priority)
	p.PriorityRestore()
	require.Equal(t, 5, p.priority)
}

func TestGetNumTasksReflectsLiveCount(t *testing.T) {
	release := make(chan struct{})
	img := &Image{
		Path: "FLASH0:SLOW.BIN",
		Entry: func(ctx context.Context, argv []string, heap *Heap) int {
			<-release
			return 0
		},
	}
	reg := MapRegistry{"FLASH0:SLOW.BIN": img}
	m := New(nil, nil, reg)

	require.Equal(t, 0, m.GetNumTasks())

	_, err := m.Spawn("FLASH0:SLOW.BIN", 4096, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.GetNumTasks() == 1 }, time.Second, 10*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return m.GetNumTasks() == 0 }, time.Second, 10*time.Millisecond)
}
