package status

import (
	"errors"
	"fmt"
)

// ErrEmptyJobID is returned before any request is made for an empty id.
var ErrEmptyJobID = errors.New("status: empty job id")

// Kind classifies a fetch failure.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindHTTP     Kind = "http"
	KindDecode   Kind = "decode"
	KindRejected Kind = "rejected"
)

// FetchError is returned by every Client call that reached the transport.
type FetchError struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *FetchError of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
