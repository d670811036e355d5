package bridgezip

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyData is returned when a compressed document has no content.
	ErrEmptyData = errors.New("empty data")
	// ErrNilWorkflow is returned when a nil workflow is compressed.
	ErrNilWorkflow = errors.New("nil workflow")
	// ErrNoMatch is returned by Extract when the selector matches no node.
	ErrNoMatch = errors.New("no matching nodes found")
	// ErrGroupNotFound is returned when no group has the requested title.
	ErrGroupNotFound = errors.New("group not found")
	// ErrNotCompressed is returned when a document does not start with a header.
	ErrNotCompressed = errors.New("invalid compressed format: must start with 'W:'")
)

// ErrorPrefix starts every flattened error string.
const ErrorPrefix = "Error: "

// ErrorText flattens err into the "Error: <message>" form used at text
// boundaries. A nil error yields "".
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return ErrorPrefix + err.Error()
}

// Text returns s, or the flattened error when err is non-nil.
func Text(s string, err error) string {
	if err != nil {
		return ErrorText(err)
	}
	return s
}

// IsErrorText reports whether s is a flattened error rather than data.
func IsErrorText(s string) bool {
	return strings.HasPrefix(s, strings.TrimSpace(ErrorPrefix))
}
