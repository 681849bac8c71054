package trial

import "fmt"

// DataError reports a problem with the content of the input table: a
// required field is absent or a value cannot be recoded.
type DataError struct {

	// The field involved
	Field string

	// The zero-based row, or -1 if the error concerns the whole column
	Row int

	Msg string
}

func (e *DataError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("data error: field '%s': %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("data error: field '%s', row %d: %s", e.Field, e.Row, e.Msg)
}

// ShapeError reports tables whose row counts or column sets disagree.
type ShapeError struct {
	Msg string
}

func (e *ShapeError) Error() string {
	return "shape error: " + e.Msg
}
