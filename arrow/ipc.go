package arrow

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// IPCWriter writes trace records in the Arrow IPC stream format.
type IPCWriter struct {
	allocator memory.Allocator
}

// NewIPCWriter creates a new IPCWriter.
func NewIPCWriter() *IPCWriter {
	return &IPCWriter{
		allocator: memory.DefaultAllocator,
	}
}

// WriteStream writes records as one IPC stream to w. All records must share
// the schema of the first.
func (w *IPCWriter) WriteStream(out io.Writer, records ...arrow.Record) error {
	if len(records) == 0 {
		return errors.New("no records to serialize")
	}

	writer := ipc.NewWriter(out, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(w.allocator))
	defer writer.Close()

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// SerializeToIPC serializes records to IPC bytes.
func (w *IPCWriter) SerializeToIPC(records ...arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.WriteStream(&buf, records...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadStream reads every record of an IPC stream. The caller must release
// the returned records.
func (w *IPCWriter) ReadStream(in io.Reader) ([]arrow.Record, error) {
	reader, err := ipc.NewReader(in, ipc.WithAllocator(w.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}

	if reader.Err() != nil {
		// Release any records we've already retained
		for _, r := range records {
			r.Release()
		}
		return nil, reader.Err()
	}

	return records, nil
}

// DeserializeFromIPC deserializes IPC bytes to all contained records.
func (w *IPCWriter) DeserializeFromIPC(data []byte) ([]arrow.Record, error) {
	return w.ReadStream(bytes.NewReader(data))
}
