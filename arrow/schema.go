package arrow

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// TraceSchema returns the Arrow schema for routed traffic.
//
// Fields:
//   - id: string - xid of the event
//   - at: timestamp[us, UTC] - when the forward started
//   - from: string - sender address
//   - to: string - destination address (empty if unresolved)
//   - method: string - request method
//   - path: string - request path
//   - outcome: string - delivered, dropped, not_answering or failed
//   - latency_us: int64 - forward latency in microseconds
//   - error: string (nullable) - terminal error, if any
func TraceSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "id", Type: arrow.BinaryTypes.String},
			{Name: "at", Type: arrow.FixedWidthTypes.Timestamp_us},
			{Name: "from", Type: arrow.BinaryTypes.String},
			{Name: "to", Type: arrow.BinaryTypes.String},
			{Name: "method", Type: arrow.BinaryTypes.String},
			{Name: "path", Type: arrow.BinaryTypes.String},
			{Name: "outcome", Type: arrow.BinaryTypes.String},
			{Name: "latency_us", Type: arrow.PrimitiveTypes.Int64},
			{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
		},
		nil,
	)
}

// ValidateSchema checks if a record matches the expected schema.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return fmt.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		actualField := actual.Field(i)
		expectedField := expected.Field(i)

		if actualField.Name != expectedField.Name {
			return fmt.Errorf("field %d name mismatch: got %s, expected %s",
				i, actualField.Name, expectedField.Name)
		}

		if !arrow.TypeEqual(actualField.Type, expectedField.Type) {
			return fmt.Errorf("field %s type mismatch: got %s, expected %s",
				actualField.Name, actualField.Type, expectedField.Type)
		}
	}

	return nil
}
