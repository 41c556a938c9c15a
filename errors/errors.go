package errors

import (
	stderrors "errors"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies the class of an engine error. Statement handling
// dispatches on the kind, not on the message.
type Kind int32

const (
	Internal Kind = iota
	DatabaseExists
	DatabaseNotFound
	TableExists
	TableNotFound
	ColumnNotFound
	IndexExists
	IndexNotFound
	IndexEntryNotFound
	RecordNotFound
	PageNotExist
	InvalidValueCount
	IncompatibleType
	StringOverflow
	UniqueViolation
	DeadlockPrevention
	UnixError
)

type RMDBError struct {
	kind Kind
	err  error
}

func (e *RMDBError) Error() string { return e.err.Error() }
func (e *RMDBError) Kind() Kind    { return e.kind }
func (e *RMDBError) Unwrap() error { return e.err }

func newError(kind Kind, format string, args ...interface{}) *RMDBError {
	return &RMDBError{kind: kind, err: pkgerrors.Errorf(format, args...)}
}

// KindOf reports the kind of err, or Internal for foreign errors.
func KindOf(err error) Kind {
	var e *RMDBError
	if stderrors.As(err, &e) {
		return e.kind
	}
	return Internal
}

func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

func NewDatabaseExists(name string) error {
	return newError(DatabaseExists, "database %s already exists", name)
}

func NewDatabaseNotFound(name string) error {
	return newError(DatabaseNotFound, "database %s not found", name)
}

func NewTableExists(name string) error {
	return newError(TableExists, "table %s already exists", name)
}

func NewTableNotFound(name string) error {
	return newError(TableNotFound, "table %s not found", name)
}

func NewColumnNotFound(name string) error {
	return newError(ColumnNotFound, "column %s not found", name)
}

func NewIndexExists(tab string, cols string) error {
	return newError(IndexExists, "index %s(%s) already exists", tab, cols)
}

func NewIndexNotFound(tab string, cols string) error {
	return newError(IndexNotFound, "index %s(%s) not found", tab, cols)
}

func NewIndexEntryNotFound() error {
	return newError(IndexEntryNotFound, "index entry not found")
}

func NewRecordNotFound(pageNo int32, slotNo int32) error {
	return newError(RecordNotFound, "record not found (page_no=%d, slot_no=%d)", pageNo, slotNo)
}

func NewPageNotExist(where string, pageNo int32) error {
	return newError(PageNotExist, "%s: page %d does not exist", where, pageNo)
}

func NewInvalidValueCount() error {
	return newError(InvalidValueCount, "invalid value count")
}

func NewIncompatibleType(expected string, got string) error {
	return newError(IncompatibleType, "incompatible type: expected %s, got %s", expected, got)
}

func NewStringOverflow() error {
	return newError(StringOverflow, "string is too long")
}

func NewUniqueViolation() error {
	return newError(UniqueViolation, "unique constraint violated")
}

func NewDeadlockPrevention(txnID int32) error {
	return newError(DeadlockPrevention, "txn %d aborted by deadlock prevention", txnID)
}

func NewUnixError(err error) error {
	return &RMDBError{kind: UnixError, err: pkgerrors.WithStack(err)}
}

func NewInternal(format string, args ...interface{}) error {
	return newError(Internal, format, args...)
}

// Wrap annotates err keeping its kind.
func Wrap(err error, msg string) error {
	var e *RMDBError
	if stderrors.As(err, &e) {
		return &RMDBError{kind: e.kind, err: pkgerrors.Wrap(e.err, msg)}
	}
	return &RMDBError{kind: Internal, err: pkgerrors.Wrap(err, msg)}
}

func Errorf(format string, args ...interface{}) error {
	return newError(Internal, format, args...)
}
