package arrow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/xid"
)

// TraceEvent is one forwarding attempt seen by a routing fabric.
type TraceEvent struct {
	ID      xid.ID
	At      time.Time
	From    string
	To      string
	Method  string
	Path    string
	Outcome string
	Latency time.Duration
	Error   string
}

// Recorder collects trace events from concurrent fabrics. A nil *Recorder
// discards events.
type Recorder struct {
	allocator memory.Allocator

	mu     sync.Mutex
	events []TraceEvent
}

// NewRecorder creates a Recorder using the default allocator.
func NewRecorder() *Recorder {
	return NewRecorderWithAllocator(memory.DefaultAllocator)
}

// NewRecorderWithAllocator creates a Recorder that builds records with alloc.
func NewRecorderWithAllocator(alloc memory.Allocator) *Recorder {
	return &Recorder{allocator: alloc}
}

// Add appends an event, assigning an ID and timestamp when missing.
func (r *Recorder) Add(ev TraceEvent) {
	if r == nil {
		return
	}
	if ev.ID.IsNil() {
		ev.ID = xid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Len returns the number of collected events.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Events returns a copy of the collected events.
func (r *Recorder) Events() []TraceEvent {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent(nil), r.events...)
}

// Record builds a record of all collected events. The caller must release it.
func (r *Recorder) Record() arrow.Record {
	return r.build(r.Events())
}

// Flush builds a record of the collected events and clears them.
func (r *Recorder) Flush() arrow.Record {
	r.mu.Lock()
	events := r.events
	r.events = nil
	r.mu.Unlock()
	return r.build(events)
}

func (r *Recorder) build(events []TraceEvent) arrow.Record {
	builder := array.NewRecordBuilder(r.allocator, TraceSchema())
	defer builder.Release()

	idBuilder := builder.Field(0).(*array.StringBuilder)
	atBuilder := builder.Field(1).(*array.TimestampBuilder)
	fromBuilder := builder.Field(2).(*array.StringBuilder)
	toBuilder := builder.Field(3).(*array.StringBuilder)
	methodBuilder := builder.Field(4).(*array.StringBuilder)
	pathBuilder := builder.Field(5).(*array.StringBuilder)
	outcomeBuilder := builder.Field(6).(*array.StringBuilder)
	latencyBuilder := builder.Field(7).(*array.Int64Builder)
	errBuilder := builder.Field(8).(*array.StringBuilder)

	for _, ev := range events {
		idBuilder.Append(ev.ID.String())
		atBuilder.Append(arrow.Timestamp(ev.At.UnixMicro()))
		fromBuilder.Append(ev.From)
		toBuilder.Append(ev.To)
		methodBuilder.Append(ev.Method)
		pathBuilder.Append(ev.Path)
		outcomeBuilder.Append(ev.Outcome)
		latencyBuilder.Append(ev.Latency.Microseconds())
		if ev.Error != "" {
			errBuilder.Append(ev.Error)
		} else {
			errBuilder.AppendNull()
		}
	}

	return builder.NewRecord()
}

// EventsFromRecord decodes a trace record back into events. Latency and
// timestamps come back at microsecond precision.
func EventsFromRecord(record arrow.Record) ([]TraceEvent, error) {
	if err := ValidateSchema(record, TraceSchema()); err != nil {
		return nil, err
	}

	idCol, ok := record.Column(0).(*array.String)
	if !ok {
		return nil, errors.New("column 0 (id) is not a String array")
	}
	atCol, ok := record.Column(1).(*array.Timestamp)
	if !ok {
		return nil, errors.New("column 1 (at) is not a Timestamp array")
	}
	latencyCol, ok := record.Column(7).(*array.Int64)
	if !ok {
		return nil, errors.New("column 7 (latency_us) is not an Int64 array")
	}
	strCols := make([]*array.String, 0, 6)
	for _, i := range []int{2, 3, 4, 5, 6, 8} {
		col, ok := record.Column(i).(*array.String)
		if !ok {
			return nil, fmt.Errorf("column %d is not a String array", i)
		}
		strCols = append(strCols, col)
	}
	fromCol, toCol, methodCol, pathCol, outcomeCol, errCol :=
		strCols[0], strCols[1], strCols[2], strCols[3], strCols[4], strCols[5]

	events := make([]TraceEvent, record.NumRows())
	for i := range events {
		id, err := xid.FromString(idCol.Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid id: %w", i, err)
		}
		events[i] = TraceEvent{
			ID:      id,
			At:      atCol.Value(i).ToTime(arrow.Microsecond),
			From:    fromCol.Value(i),
			To:      toCol.Value(i),
			Method:  methodCol.Value(i),
			Path:    pathCol.Value(i),
			Outcome: outcomeCol.Value(i),
			Latency: time.Duration(latencyCol.Value(i)) * time.Microsecond,
		}
		if !errCol.IsNull(i) {
			events[i].Error = errCol.Value(i)
		}
	}
	return events, nil
}
