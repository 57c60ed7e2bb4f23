package vm

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
)

// ---------------------------------------------------------------------------
// Thread: a callable running on its own goroutine and State
// ---------------------------------------------------------------------------

// ThreadStatus records who has claimed a thread's result.
type ThreadStatus int32

const (
	ThreadUnchanged ThreadStatus = iota
	ThreadJoined
	ThreadDetached
)

// Thread runs one call on a separate goroutine with its own State. The
// goroutine shares every store with the thread that started it.
type Thread struct {
	id     string
	status atomic.Int32 // ThreadStatus
	done   chan struct{}

	mu     sync.Mutex
	fn     Value
	args   []Value
	result Value
	err    error

	// freed ensures exactly one of the joiner, the detacher or the exiting
	// goroutine releases the call record.
	freed atomic.Bool
	log   commonlog.Logger
}

// ID returns the thread's unique identifier.
func (t *Thread) ID() string {
	return t.id
}

// Status returns the current claim on the thread.
func (t *Thread) Status() ThreadStatus {
	return ThreadStatus(t.status.Load())
}

// startThread runs fn(args...) on a new goroutine.
func (it *Interpreter) startThread(fn Value, args []Value) *Thread {
	t := &Thread{
		id:   uuid.New().String(),
		done: make(chan struct{}),
		fn:   fn,
		args: args,
		log:  commonlog.GetLogger("argon.threading"),
	}
	go t.run(it.NewState())
	return t
}

func (t *Thread) run(s *State) {
	t.mu.Lock()
	fn, args := t.fn, t.args
	t.mu.Unlock()

	result, err := s.Call(fn, args)
	t.markDone(result, err)
	if t.Status() == ThreadDetached {
		t.release()
	}
}

func (t *Thread) markDone(result Value, err error) {
	t.mu.Lock()
	t.result = result
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

func (t *Thread) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// release drops the call record once. A detached thread's error has no
// one to receive it, so it is logged here.
func (t *Thread) release() {
	if !t.freed.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	err := t.err
	t.fn = nil
	t.args = nil
	if t.Status() == ThreadDetached {
		t.result = nil
	}
	t.mu.Unlock()
	if err != nil && t.Status() == ThreadDetached {
		t.log.Errorf("detached thread %s failed: %v", t.ID(), err)
	}
}

// Join waits for the thread and returns its result. It fails if the
// thread was already joined or detached.
func (t *Thread) Join() (Value, error) {
	if !t.status.CompareAndSwap(int32(ThreadUnchanged), int32(ThreadJoined)) {
		return nil, t.claimed("join")
	}
	<-t.done
	t.mu.Lock()
	result, err := t.result, t.err
	t.mu.Unlock()
	t.release()
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = Null
	}
	return result, nil
}

// Detach lets the thread run to completion unobserved.
func (t *Thread) Detach() error {
	if !t.status.CompareAndSwap(int32(ThreadUnchanged), int32(ThreadDetached)) {
		return t.claimed("detach")
	}
	if t.isDone() {
		t.release()
	}
	return nil
}

func (t *Thread) claimed(op string) error {
	switch t.Status() {
	case ThreadJoined:
		return arerr.New(arerr.Runtime, "cannot %s thread %s: already joined", op, t.id)
	default:
		return arerr.New(arerr.Runtime, "cannot %s thread %s: already detached", op, t.id)
	}
}

// ---------------------------------------------------------------------------
// threading native module
// ---------------------------------------------------------------------------

func threadingModule(api *NativeAPI, exports *Object) error {
	threadClass := api.NewClass("thread", nil)
	api.Register(exports, "thread", threadClass)

	api.Register(exports, "start", api.NewFunction("start", -1, func(s *State, args []Value) (Value, error) {
		if len(args) == 0 {
			return nil, api.NewError(arerr.Runtime, "start expects a function to run")
		}
		fn := args[0]
		switch fn.(type) {
		case *Function, *NativeFunction, *BoundMethod, *Object:
		default:
			return nil, api.NewError(arerr.Runtime, "'%s' object is not callable", fn.TypeName())
		}
		callArgs := append([]Value(nil), args[1:]...)
		t := s.Interpreter().startThread(fn, callArgs)
		return newThreadObject(api, threadClass, t), nil
	}))
	return nil
}

func newThreadObject(api *NativeAPI, cls *Object, t *Thread) *Object {
	obj := api.NewInstance(cls)
	api.Register(obj, "id", api.StringFromGo(t.ID()))
	api.Register(obj, "join", api.NewFunction("join", 0, func(s *State, args []Value) (Value, error) {
		return t.Join()
	}))
	api.Register(obj, "detach", api.NewFunction("detach", 0, func(s *State, args []Value) (Value, error) {
		return Null, t.Detach()
	}))
	return obj
}
