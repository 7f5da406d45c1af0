package legacy

import (
	"fmt"
)

// StoreErrorKind classifies fatal legacy store errors
type StoreErrorKind int

const (
	// KindUnreadable means the file is missing, corrupt, or not a legacy store.
	KindUnreadable StoreErrorKind = iota + 1
	// KindUnsupportedVersion means Z_METADATA names a schema version this reader cannot decode.
	KindUnsupportedVersion
)

func (k StoreErrorKind) String() string {
	switch k {
	case KindUnreadable:
		return "unreadable"
	case KindUnsupportedVersion:
		return "unsupported_version"
	default:
		return "unknown"
	}
}

// StoreError is fatal to a migration attempt.
type StoreError struct {
	Kind    StoreErrorKind
	Path    string
	Version int // set for KindUnsupportedVersion
	Err     error
}

func (e *StoreError) Error() string {
	switch {
	case e.Kind == KindUnsupportedVersion:
		return fmt.Sprintf("legacy store %s: unsupported schema version %d", e.Path, e.Version)
	case e.Err != nil:
		return fmt.Sprintf("legacy store %s: %s: %v", e.Path, e.Kind, e.Err)
	default:
		return fmt.Sprintf("legacy store %s: %s", e.Path, e.Kind)
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DecodeError reports one legacy row that could not be decoded. The row is
// skipped and counted; the enumeration continues.
type DecodeError struct {
	Kind     string // entity kind, see entities.Kind*
	LegacyID int64
	Field    string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %d: %s: %s", e.Kind, e.LegacyID, e.Field, e.Reason)
}
