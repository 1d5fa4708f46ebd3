// Package process implements BadgeVMS's ProcessMgr: spawning relocatable
// binaries into per-process virtual address spaces, scheduling them
// cooperatively, and propagating termination — on the host, "loading a
// relocatable image" becomes resolving a registered Go entry point against
// pkg/symtab and running it as a goroutine with a private heap arena, the
// closest a hosted simulation can get to the firmware's per-task PSRAM
// carve-out.
//
// Grounded on badgevms/include/badgevms/process.h and
// components/elf_loader/src/esp_elf_symbol.c. The manager/registry
// concurrency idiom (a mutex-guarded map plus atomic counters) follows
// pkg/virtualizers.Manager.
package process

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/sgielen/why2025-clife-sub001/pkg/symtab"
	"github.com/sgielen/why2025-clife-sub001/pkg/vklog"
)

// Pid identifies a process or thread; both are drawn from the same id
// space per spec.md §4.5.
type Pid int32

// Entry is the function a spawned process or thread runs. It receives argv
// and the Heap carved out for it (threads receive their parent's).
type Entry func(ctx context.Context, argv []string, heap *Heap) int

var (
	ErrImageNotFound    = errors.New("process: image not found")
	ErrSymbolUnresolved = errors.New("process: symbol resolution failed")
	ErrOutOfMemory      = errors.New("process: insufficient memory")
	ErrNoSuchProcess    = errors.New("process: no such process")
)

// Image describes a loaded relocatable binary: its entry point and the
// external symbols it references, resolved against a Manager's symtab
// before scheduling.
type Image struct {
	Path            string
	Entry           Entry
	ExternalSymbols []string
}

// Registry is where images are looked up by path, standing in for reading
// a relocatable ELF off a filesystem device and relocating it.
type Registry interface {
	Load(path string) (*Image, error)
}

// MapRegistry is the simplest Registry: a fixed map from path to Image,
// used by tests; cmd/badgevms boots with an empty one.
type MapRegistry map[string]*Image

func (m MapRegistry) Load(path string) (*Image, error) {
	img, ok := m[path]
	if !ok {
		return nil, errors.Wrapf(ErrImageNotFound, "path %q", path)
	}
	return img, nil
}

type taskKind int

const (
	kindProcess taskKind = iota
	kindThread
)

// Process is a live process or thread; threads share their parent's Heap
// but keep their own priority stack.
type Process struct {
	Pid      Pid
	ParentID Pid
	Argv     []string
	kind     taskKind

	heap *Heap

	priorityMu    sync.Mutex
	priorityStack []int
	priority      int

	cancel context.CancelFunc
	done   chan struct{}

	exitStatus int
	children   map[Pid]bool
}

// Manager implements spec.md §4.5's ProcessMgr.
type Manager struct {
	log     vklog.Logger
	symbols *symtab.Table
	images  Registry

	nextPid int32

	mu        sync.Mutex
	processes map[Pid]*Process
	reapable  map[Pid]chan Pid // per-parent channel of terminated child pids
}

// New creates a process manager resolving images through registry and
// external symbols through symbols.
func New(log vklog.Logger, symbols *symtab.Table, images Registry) *Manager {
	if log == nil {
		log = &vklog.CLI{}
	}
	return &Manager{
		log:       log,
		symbols:   symbols,
		images:    images,
		processes: make(map[Pid]*Process),
		reapable:  make(map[Pid]chan Pid),
	}
}

func (m *Manager) allocPid() Pid {
	return Pid(atomic.AddInt32(&m.nextPid, 1))
}

func (m *Manager) reapChanFor(pid Pid) chan Pid {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.reapable[pid]
	if !ok {
		ch = make(chan Pid, 64)
		m.reapable[pid] = ch
	}
	return ch
}

// Spawn loads the image at path, resolves its external symbols, allocates
// a private heap of stackSize bytes of backing arena, and schedules a
// goroutine at its entry point with argc/argv. Launched processes have no
// parent (pid 0, the root) unless called from within another process's
// context — callers that need a parent link should use SpawnChild.
func (m *Manager) Spawn(path string, stackSize int, argv []string) (Pid, error) {
	return m.spawn(0, path, stackSize, argv)
}

// SpawnChild is Spawn but links the new process to parent for reaping.
func (m *Manager) SpawnChild(parent Pid, path string, stackSize int, argv []string) (Pid, error) {
	return m.spawn(parent, path, stackSize, argv)
}

func (m *Manager) spawn(parent Pid, path string, stackSize int, argv []string) (Pid, error) {
	img, err := m.images.Load(path)
	if err != nil {
		return -1, err
	}

	if m.symbols != nil && len(img.ExternalSymbols) > 0 {
		if _, err := m.symbols.ResolveAll(img.ExternalSymbols); err != nil {
			return -1, errors.Wrapf(ErrSymbolUnresolved, "%s: %v", path, err)
		}
	}

	heap, err := NewHeap(stackSize)
	if err != nil {
		return -1, errors.Wrapf(ErrOutOfMemory, "%s: %v", path, err)
	}

	pid := m.allocPid()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Process{
		Pid:      pid,
		ParentID: parent,
		Argv:     argv,
		kind:     kindProcess,
		heap:     heap,
		cancel:   cancel,
		done:     make(chan struct{}),
		children: make(map[Pid]bool),
	}

	m.mu.Lock()
	m.processes[pid] = p
	if parent != 0 {
		if pp, ok := m.processes[parent]; ok {
			pp.children[pid] = true
		}
	}
	m.mu.Unlock()

	m.log.Infof("process: spawning pid=%d path=%s", pid, path)

	go func() {
		defer close(p.done)
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorf("process: pid=%d faulted: %v", pid, r)
				p.exitStatus = -1
			}
			m.terminate(p)
		}()
		p.exitStatus = img.Entry(ctx, argv, heap)
	}()

	return pid, nil
}

// ThreadCreate creates a task sharing the calling process's address space
// and heap; its pid is drawn from the same id space and is valid for Wait.
func (m *Manager) ThreadCreate(owner Pid, entry func(ctx context.Context, userData interface{}), userData interface{}) (Pid, error) {
	m.mu.Lock()
	parent, ok := m.processes[owner]
	m.mu.Unlock()
	if !ok {
		return -1, errors.Wrapf(ErrNoSuchProcess, "pid %d", owner)
	}

	pid := m.allocPid()
	ctx, cancel := context.WithCancel(context.Background())
	t := &Process{
		Pid:      pid,
		ParentID: owner,
		kind:     kindThread,
		heap:     parent.heap,
		cancel:   cancel,
		done:     make(chan struct{}),
		children: make(map[Pid]bool),
	}

	m.mu.Lock()
	m.processes[pid] = t
	parent.children[pid] = true
	m.mu.Unlock()

	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorf("process: thread pid=%d faulted: %v", pid, r)
			}
			m.terminate(t)
		}()
		entry(ctx, userData)
	}()

	return pid, nil
}

func (m *Manager) terminate(p *Process) {
	m.mu.Lock()
	delete(m.processes, p.Pid)
	m.mu.Unlock()

	// reapChanFor creates the channel if a parent hasn't called Wait yet,
	// so a child that terminates before its parent ever waits is still
	// queued rather than dropped.
	ch := m.reapChanFor(p.ParentID)
	select {
	case ch <- p.Pid:
	default:
		m.log.Warnf("process: reap channel for parent=%d full, dropping pid=%d", p.ParentID, p.Pid)
	}
}

// Wait returns any reapable child of owner's process (or owner's parent,
// for threads) in first-come order; -1 on timeout with block requested,
// and -1 immediately when block is false and nothing is reapable.
func (m *Manager) Wait(owner Pid, block bool, timeout time.Duration) Pid {
	m.mu.Lock()
	if p, ok := m.processes[owner]; ok && p.kind == kindThread {
		owner = p.ParentID
	}
	m.mu.Unlock()

	ch := m.reapChanFor(owner)

	if !block {
		select {
		case pid := <-ch:
			return pid
		default:
			return -1
		}
	}

	if timeout <= 0 {
		return <-ch
	}

	select {
	case pid := <-ch:
		return pid
	case <-time.After(timeout):
		return -1
	}
}

// PriorityLower pushes the current priority and lowers it; PriorityRestore
// pops back to the previously saved value. Reentrant within a single
// caller's Process handle (spec.md §9 leaves cross-task semantics
// unspecified; this implementation scopes the stack per *Process).
func (p *Process) PriorityLower() {
	p.priorityMu.Lock()
	defer p.priorityMu.Unlock()
	p.priorityStack = append(p.priorityStack, p.priority)
	p.priority--
}

func (p *Process) PriorityRestore() {
	p.priorityMu.Lock()
	defer p.priorityMu.Unlock()
	if len(p.priorityStack) == 0 {
		return
	}
	p.priority = p.priorityStack[len(p.priorityStack)-1]
	p.priorityStack = p.priorityStack[:len(p.priorityStack)-1]
}

// GetNumTasks returns the number of live processes and threads.
func (m *Manager) GetNumTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processes)
}

// Lookup returns the live Process for pid, if any.
func (m *Manager) Lookup(pid Pid) (*Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[pid]
	return p, ok
}
