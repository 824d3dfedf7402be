package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-resource-sync/cachekey"
)

// ErrInvalidResultType is returned when a cached value can't be converted to
// the type requested by the caller.
var ErrInvalidResultType = errors.New("cache: invalid result type")

// Status is the fetch state of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Entry is the last known state of a key.
type Entry struct {
	Value     any
	HasValue  bool
	Err       error
	Status    Status
	UpdatedAt time.Time
	// Stale is set by invalidation. Stale entries still carry their last
	// value but are never served to a read without a fetch.
	Stale bool
	// Seq is the sequence number of the write that produced this entry.
	Seq uint64
}

// Fresh reports whether the entry can be served without fetching.
func (e Entry) Fresh() bool {
	return e.HasValue && !e.Stale && e.Status != StatusError
}

// EventKind describes what happened to a key.
type EventKind int

const (
	// EventUpdated means the entry changed: loading started, a value or an
	// error was written.
	EventUpdated EventKind = iota
	// EventInvalidated means the entry was marked stale and should be re-fetched
	// by anyone still interested in it.
	EventInvalidated
	// EventRemoved means the entry was dropped, typically after its entity
	// was deleted.
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventInvalidated:
		return "invalidated"
	case EventRemoved:
		return "removed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to listeners registered with Store.Subscribe.
// Version increases with every event of a key; listeners drop events older
// than the last one they handled since delivery happens outside store locks.
type Event struct {
	Key     cachekey.Key
	Kind    EventKind
	Entry   Entry
	Version uint64
}

// Listener receives store events. Listeners are called outside store locks
// but possibly from inside a running fetch, so they must not block on the
// store; start a goroutine for follow-up reads.
type Listener func(Event)

// Value converts the entry value to T. A nil value yields the zero T.
func Value[T any](e Entry) (T, error) {
	var zero T
	if e.Value == nil {
		return zero, nil
	}
	v, ok := e.Value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: have %T, want %T", ErrInvalidResultType, e.Value, zero)
	}
	return v, nil
}
