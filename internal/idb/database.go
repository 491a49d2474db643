package idb

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/idbtx/internal/event"
	"github.com/roach88/idbtx/internal/sched"
)

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Database) {
		d.logger = l
	}
}

// WithObserver sets the lifecycle observer used for metrics.
func WithObserver(o Observer) Option {
	return func(d *Database) {
		d.observer = o
	}
}

// WithIDGenerator sets the transaction ID generator. Defaults to UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Database) {
		d.ids = g
	}
}

// WithVersion sets the initial schema version. Defaults to 1.
func WithVersion(v uint64) Option {
	return func(d *Database) {
		d.version = v
	}
}

// Database is a named collection of object stores and the scheduler of the
// transactions opened against it.
//
// A transaction starts once no earlier unfinished transaction overlaps its
// scope where either side may write. Readonly transactions over the same
// stores run side by side.
//
// Database is not safe for concurrent use; every call must happen on the
// goroutine that drives its scheduler.
type Database struct {
	emitter event.Emitter

	name    string
	version uint64
	stores  map[string]*RecordStore
	closed  bool

	// unfinished transactions in creation order.
	pending []*Transaction

	sched    sched.Scheduler
	logger   *slog.Logger
	observer Observer
	ids      IDGenerator
}

var (
	_ event.Target = (*Database)(nil)
	_ Undoer       = (*Database)(nil)
)

// NewDatabase creates an empty database whose transactions are driven by s.
func NewDatabase(name string, s sched.Scheduler, opts ...Option) *Database {
	d := &Database{
		name:     name,
		version:  1,
		stores:   make(map[string]*RecordStore),
		sched:    s,
		logger:   slog.Default(),
		observer: nopObserver{},
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("db", name)
	return d
}

// Emitter returns the database's listener registry. Request error events
// and transaction abort events bubble here.
func (d *Database) Emitter() *event.Emitter { return &d.emitter }

// Name returns the database name.
func (d *Database) Name() string { return d.name }

// Version returns the current schema version.
func (d *Database) Version() uint64 { return d.version }

// Closed reports whether Close was called.
func (d *Database) Closed() bool { return d.closed }

// StoreNames returns the object store names in sorted order.
func (d *Database) StoreNames() []string {
	return slices.Sorted(maps.Keys(d.stores))
}

// LookupStore returns the physical store for name.
func (d *Database) LookupStore(name string) (*RecordStore, bool) {
	rs, ok := d.stores[name]
	return rs, ok
}

// CreateStore adds an object store outside any transaction. It is meant for
// setting up an initial schema before transactions run.
func (d *Database) CreateStore(name string, opts StoreOptions) (*RecordStore, error) {
	if d.closed {
		return nil, NewError(InvalidStateErr, "database %q is closed", d.name)
	}
	return d.createStore(name, opts)
}

func (d *Database) createStore(name string, opts StoreOptions) (*RecordStore, error) {
	if _, ok := d.stores[name]; ok {
		return nil, NewError(ConstraintErr, "store %q already exists", name)
	}
	if !validKeyPath(opts.KeyPath) {
		return nil, NewError(InvalidAccessErr, "invalid key path %q", opts.KeyPath)
	}
	rs := newRecordStore(name, opts)
	d.stores[name] = rs
	return rs, nil
}

// Transaction opens a transaction over the named stores.
//
// Fails with InvalidStateError if the database is closed, with
// InvalidAccessError for an empty scope or the versionchange mode, and with
// NotFoundError if a store does not exist.
func (d *Database) Transaction(names []string, mode Mode) (*Transaction, error) {
	if d.closed {
		return nil, NewError(InvalidStateErr, "database %q is closed", d.name)
	}
	if mode == VersionChange {
		return nil, NewError(InvalidAccessErr, "versionchange transactions are opened by Upgrade")
	}

	scope := slices.Compact(slices.Sorted(slices.Values(names)))
	if len(scope) == 0 {
		return nil, NewError(InvalidAccessErr, "transaction scope is empty")
	}
	for _, name := range scope {
		if _, ok := d.stores[name]; !ok {
			return nil, NewError(NotFoundErr, "store %q does not exist", name)
		}
	}

	return d.open(scope, mode), nil
}

// Upgrade opens a versionchange transaction over every store and moves the
// database to version. The version change is undone if the transaction
// aborts. Fails with VersionError unless version is greater than the
// current one.
func (d *Database) Upgrade(version uint64) (*Transaction, error) {
	if d.closed {
		return nil, NewError(InvalidStateErr, "database %q is closed", d.name)
	}
	if version <= d.version {
		return nil, NewError(VersionErr, "version %d is not greater than %d", version, d.version)
	}

	tx := d.open(nil, VersionChange)
	tx.LogUndo(UndoEntry{Kind: UndoRestoreVersion, Version: d.version})
	d.logger.Info("database upgrading", "from", d.version, "to", version, "tx", tx.id)
	d.version = version
	return tx, nil
}

func (d *Database) open(scope []string, mode Mode) *Transaction {
	tx := newTransaction(d, d.ids.Generate(), scope, mode)
	d.pending = append(d.pending, tx)
	d.logger.Debug("transaction created", "tx", tx.id, "mode", mode.String(), "scope", scope)
	d.processTransactions()
	return tx
}

// Close stops the database from accepting new transactions. Transactions
// already opened run to completion.
func (d *Database) Close() {
	if d.closed {
		return
	}
	d.closed = true
	d.logger.Debug("database closed", "pending", len(d.pending))
}

// processTransactions schedules the first tick of every transaction that is
// no longer blocked by an earlier one.
func (d *Database) processTransactions() {
	for i, tx := range d.pending {
		if tx.scheduled || tx.state == Finished {
			continue
		}
		if d.blocked(tx, d.pending[:i]) {
			continue
		}
		tx.scheduled = true
		d.sched.Schedule(tx.start)
	}
}

func (d *Database) blocked(tx *Transaction, earlier []*Transaction) bool {
	for _, other := range earlier {
		if other.state == Finished {
			continue
		}
		if tx.mode == ReadOnly && other.mode == ReadOnly {
			continue
		}
		if tx.overlaps(other) {
			return true
		}
	}
	return false
}

// transactionFinished drops tx from the pending list and starts whatever
// it was blocking.
func (d *Database) transactionFinished(tx *Transaction) {
	d.pending = slices.DeleteFunc(d.pending, func(p *Transaction) bool { return p == tx })
	d.processTransactions()
}

// Undo applies one compensating command to the database.
func (d *Database) Undo(e UndoEntry) error {
	switch e.Kind {
	case UndoRestoreRecord:
		rs, err := d.undoTarget(e)
		if err != nil {
			return err
		}
		if e.HadValue {
			rs.put(e.Key, e.Value)
		} else {
			rs.remove(e.Key)
		}
	case UndoRestoreStore:
		rs, err := d.undoTarget(e)
		if err != nil {
			return err
		}
		rs.restore(e.Records)
	case UndoRestoreKeyGenerator:
		rs, err := d.undoTarget(e)
		if err != nil {
			return err
		}
		rs.keyGen = e.KeyGen
	case UndoDropStore:
		rs, err := d.undoTarget(e)
		if err != nil {
			return err
		}
		rs.deleted = true
		delete(d.stores, e.Store)
	case UndoReviveStore:
		if _, ok := d.stores[e.Store]; ok {
			return errors.Newf("store %q already exists", e.Store)
		}
		rs := newRecordStore(e.Store, e.Options)
		rs.restore(e.Records)
		rs.keyGen = e.KeyGen
		d.stores[e.Store] = rs
	case UndoRestoreVersion:
		d.version = e.Version
	default:
		return errors.Newf("unknown undo kind %s", e.Kind)
	}
	return nil
}

func (d *Database) undoTarget(e UndoEntry) (*RecordStore, error) {
	rs, ok := d.stores[e.Store]
	if !ok {
		return nil, errors.Newf("store %q does not exist", e.Store)
	}
	return rs, nil
}
