package oplog

import (
	"encoding/json"
	"sync"
	"time"
)

// Operation is a single append-only record in the log.
type Operation struct {
	Time         time.Time
	Kind         Kind
	Key          Key
	CurrentValue *Value // nil for Delete
	PrevValue    *Value // set only for Update, and only when observed
}

// record is the JSON shape exposed to diagnostics consumers and the
// shipper; it flattens Operation's pointer fields into presence/absence.
type record struct {
	Time     int64  `json:"time_unix_nano"`
	Kind     string `json:"kind"`
	Key      Key    `json:"key"`
	Current  *Value `json:"current_value,omitempty"`
	Previous *Value `json:"prev_value,omitempty"`
}

// MarshalJSON renders an Operation in the shipper/diagnostics wire shape.
func (o Operation) MarshalJSON() ([]byte, error) {
	r := record{
		Time:     o.Time.UnixNano(),
		Kind:     o.Kind.String(),
		Key:      o.Key,
		Current:  o.CurrentValue,
		Previous: o.PrevValue,
	}
	return json.Marshal(r)
}

// Log is the append-only, in-memory ordered sequence of Operations.
// Append index is the canonical ordering; entries are never reordered,
// coalesced, or truncated. The zero value is ready to use.
type Log struct {
	mu  sync.Mutex
	ops []Operation
}

// New returns an empty Log.
func New() *Log {
	return &Log{}
}

// AppendInsert records an Insert of key=currentValue.
func (l *Log) AppendInsert(key Key, currentValue Value) Operation {
	op := Operation{Time: now(), Kind: Insert, Key: key, CurrentValue: &currentValue}
	l.append(op)
	return op
}

// AppendUpdate records an Update of key to currentValue, carrying prev
// when the caller observed a prior value under the same lock as the
// mutation (spec §4.3/§9). prev is nil when the prior value is unknown.
func (l *Log) AppendUpdate(key Key, currentValue Value, prev *Value) Operation {
	op := Operation{Time: now(), Kind: Update, Key: key, CurrentValue: &currentValue, PrevValue: prev}
	l.append(op)
	return op
}

// AppendDelete records a Delete of key.
func (l *Log) AppendDelete(key Key) Operation {
	op := Operation{Time: now(), Kind: Delete, Key: key}
	l.append(op)
	return op
}

func (l *Log) append(op Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

// Len returns the number of operations appended so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

// Snapshot returns a copy of all operations currently in the log, in
// append order. It is safe to call concurrently with appends.
func (l *Log) Snapshot() []Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Operation, len(l.ops))
	copy(out, l.ops)
	return out
}

// Tail returns a copy of the last n operations (fewer if the log is
// shorter), in append order.
func (l *Log) Tail(n int) []Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || len(l.ops) == 0 {
		return nil
	}
	if n > len(l.ops) {
		n = len(l.ops)
	}
	out := make([]Operation, n)
	copy(out, l.ops[len(l.ops)-n:])
	return out
}

// now is a seam so tests can observe monotonic ordering without racing
// the wall clock.
var now = time.Now
