package idb

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// UndoKind selects the compensating action an UndoEntry performs.
type UndoKind int

const (
	// UndoRestoreRecord puts Value back under Key, or deletes Key when
	// HadValue is false.
	UndoRestoreRecord UndoKind = iota + 1
	// UndoRestoreStore replaces the whole record set with Records.
	UndoRestoreStore
	// UndoRestoreKeyGenerator resets the key generator to KeyGen.
	UndoRestoreKeyGenerator
	// UndoDropStore removes a store created inside the transaction.
	UndoDropStore
	// UndoReviveStore re-creates a store deleted inside the transaction
	// from Options, Records and KeyGen.
	UndoReviveStore
	// UndoRestoreVersion resets the database version to Version.
	UndoRestoreVersion
)

func (k UndoKind) String() string {
	switch k {
	case UndoRestoreRecord:
		return "restore-record"
	case UndoRestoreStore:
		return "restore-store"
	case UndoRestoreKeyGenerator:
		return "restore-key-generator"
	case UndoDropStore:
		return "drop-store"
	case UndoReviveStore:
		return "revive-store"
	case UndoRestoreVersion:
		return "restore-version"
	default:
		return fmt.Sprintf("UndoKind(%d)", int(k))
	}
}

// UndoEntry is one compensating command. Entries are plain data: they hold
// no closures and no references to live store objects, so they stay valid
// after the transaction finishes and can be inspected in tests.
type UndoEntry struct {
	Kind     UndoKind
	Store    string
	Key      any
	Value    any
	HadValue bool
	Records  []Record
	Options  StoreOptions
	KeyGen   float64
	Version  uint64
}

// Undoer interprets undo entries. Database is the production interpreter.
type Undoer interface {
	Undo(e UndoEntry) error
}

// RollbackLog is an ordered sequence of undo entries. Mutating operations
// append to it before they apply a change.
type RollbackLog struct {
	entries []UndoEntry
}

// Append records a compensating command.
func (l *RollbackLog) Append(e UndoEntry) {
	l.entries = append(l.entries, e)
}

// Len returns the number of entries.
func (l *RollbackLog) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the entries in append order.
func (l *RollbackLog) Entries() []UndoEntry {
	out := make([]UndoEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Replay applies every entry in reverse order. A failing or panicking entry
// does not stop the ones before it; all failures are combined into the result.
func (l *RollbackLog) Replay(u Undoer) error {
	var errs error
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if err := applyUndo(u, e); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "undo %s on %q", e.Kind, e.Store))
		}
	}
	return errs
}

func applyUndo(u Undoer, e UndoEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("undo panicked: %v", r)
		}
	}()
	return u.Undo(e)
}
