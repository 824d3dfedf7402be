// Package action tracks the state of asynchronous mutating calls.
//
// An Action wraps a function and records whether it is running, its last
// result and its last error. Failures are state, not return values: callers
// inspect State instead of handling an error on every call site.
//
// When invocations overlap, only the most recently started one is reflected
// in the state, whatever order they complete in.
package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is the wrapped call.
type Func[A, R any] func(ctx context.Context, args A) (R, error)

// State is the observable state of an Action.
type State[R any] struct {
	IsLoading   bool
	Err         error
	Data        R
	HasData     bool
	LastUpdated time.Time
}

// Result is the outcome of one invocation. Applied is false when a later
// invocation started before this one completed.
type Result[R any] struct {
	Data    R
	Err     error
	Applied bool
}

// PanicError carries a panic recovered from the wrapped function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("action: panic: %v", e.Value)
}

// Action wraps fn with loading, error and data tracking. It is safe for
// concurrent use.
type Action[A, R any] struct {
	fn        Func[A, R]
	onSuccess func(R)
	onError   func(error)
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	seq   uint64
	state State[R]
}

// New wraps fn.
func New[A, R any](fn Func[A, R]) *Action[A, R] {
	return &Action[A, R]{
		fn:     fn,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// OnSuccess registers a hook called with the result of every applied
// successful invocation.
func (a *Action[A, R]) OnSuccess(fn func(R)) *Action[A, R] {
	a.onSuccess = fn
	return a
}

// OnError registers a hook called with the error of every applied failed
// invocation.
func (a *Action[A, R]) OnError(fn func(error)) *Action[A, R] {
	a.onError = fn
	return a
}

func (a *Action[A, R]) WithLogger(logger *zap.Logger) *Action[A, R] {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Execute runs the wrapped function and blocks until it returns. It reports
// the result and whether the call succeeded; the error itself is recorded
// in State.
func (a *Action[A, R]) Execute(ctx context.Context, args A) (R, bool) {
	res := a.run(ctx, args, a.start())
	return res.Data, res.Err == nil
}

// Go starts the wrapped function in a goroutine. The state switches to
// loading before Go returns. The channel receives the outcome and is then
// closed.
func (a *Action[A, R]) Go(ctx context.Context, args A) <-chan Result[R] {
	seq := a.start()
	out := make(chan Result[R], 1)
	go func() {
		defer close(out)
		out <- a.run(ctx, args, seq)
	}()
	return out
}

// State returns a copy of the current state.
func (a *Action[A, R]) State() State[R] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Reset clears the state. Invocations still running are not applied.
func (a *Action[A, R]) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.state = State[R]{}
}

func (a *Action[A, R]) start() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.state.IsLoading = true
	return a.seq
}

func (a *Action[A, R]) run(ctx context.Context, args A, seq uint64) Result[R] {
	data, err := a.call(ctx, args)

	a.mu.Lock()
	if seq != a.seq {
		a.mu.Unlock()
		return Result[R]{Data: data, Err: err}
	}
	a.state.IsLoading = false
	a.state.LastUpdated = a.now()
	if err != nil {
		a.state.Err = err
	} else {
		a.state.Err = nil
		a.state.Data = data
		a.state.HasData = true
	}
	onSuccess, onError := a.onSuccess, a.onError
	a.mu.Unlock()

	if err != nil && onError != nil {
		onError(err)
	}
	if err == nil && onSuccess != nil {
		onSuccess(data)
	}
	return Result[R]{Data: data, Err: err, Applied: true}
}

func (a *Action[A, R]) call(ctx context.Context, args A) (data R, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("action panicked", zap.Any("panic", r))
			var zero R
			data, err = zero, &PanicError{Value: r}
		}
	}()
	return a.fn(ctx, args)
}
