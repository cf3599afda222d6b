package elasticsearch

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by both protocol drivers. Calling code matches on
// these with errors.Is regardless of the active version.
var (
	// ErrNotFound indicates the document, index or alias does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a version conflict on a document update.
	ErrConflict = errors.New("version conflict")
)

// OpError is the structured "index operation failed" error every cluster
// operation returns on failure.
type OpError struct {
	Op         string
	Index      string
	StatusCode int
	Err        error
}

func (e *OpError) Error() string {
	if e.Index != "" {
		return fmt.Sprintf("elasticsearch: %s %s: %v", e.Op, e.Index, e.Err)
	}
	return fmt.Sprintf("elasticsearch: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// BulkItemError describes a single failed item within a bulk request.
type BulkItemError struct {
	DocumentID string `json:"document_id"`
	Action     string `json:"action"`
	Status     int    `json:"status"`
	Reason     string `json:"reason"`
}

// BulkError aggregates per-item failures from a bulk operation. It is
// returned only after every chunk has been attempted.
type BulkError struct {
	Items []BulkItemError
}

func (e *BulkError) Error() string {
	reasons := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		reasons = append(reasons, fmt.Sprintf("%s: %s", item.DocumentID, item.Reason))
	}
	return fmt.Sprintf("bulk: %d document(s) failed to index: %s",
		len(e.Items), strings.Join(reasons, "; "))
}

// UnsupportedError reports a feature absent from the active protocol version.
// It is surfaced at first use, never silently ignored.
type UnsupportedError struct {
	Feature Feature
	Version Version
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("feature %q is not supported by protocol version %s", e.Feature, e.Version)
}

// IsNotFound reports whether err represents a missing document/index/alias.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err represents a document version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// newOpError maps a cluster response status to the error taxonomy.
func newOpError(op, index string, statusCode int, body string) *OpError {
	var cause error
	switch statusCode {
	case 404:
		cause = ErrNotFound
	case 409:
		cause = ErrConflict
	default:
		cause = fmt.Errorf("status %d: %s", statusCode, body)
	}
	return &OpError{Op: op, Index: index, StatusCode: statusCode, Err: cause}
}
