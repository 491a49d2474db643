package idb

// ObjectStore is a transaction's handle on one object store. Every method
// validates synchronously and then enqueues an operation into the owning
// transaction; the returned request completes when the driver reaches it.
type ObjectStore struct {
	tx    *Transaction
	store *RecordStore
}

var _ Source = (*ObjectStore)(nil)

func newObjectStore(tx *Transaction, rs *RecordStore) *ObjectStore {
	return &ObjectStore{tx: tx, store: rs}
}

// SourceName implements Source.
func (s *ObjectStore) SourceName() string { return s.store.name }

// Name returns the store name.
func (s *ObjectStore) Name() string { return s.store.name }

// KeyPath returns the in-line key path, or "" for out-of-line keys.
func (s *ObjectStore) KeyPath() string { return s.store.opts.KeyPath }

// AutoIncrement reports whether the store has a key generator.
func (s *ObjectStore) AutoIncrement() bool { return s.store.opts.AutoIncrement }

// Transaction returns the owning transaction.
func (s *ObjectStore) Transaction() *Transaction { return s.tx }

func (s *ObjectStore) check(write bool) error {
	if s.store.deleted {
		return NewError(InvalidStateErr, "store %q has been deleted", s.store.name)
	}
	if s.tx.state != Active || s.tx.aborting {
		return NewError(TransactionInactiveErr, "transaction %s is %s", s.tx.id, s.tx.state)
	}
	if write && s.tx.mode == ReadOnly {
		return NewError(ReadOnlyErr, "transaction %s is readonly", s.tx.id)
	}
	return nil
}

// live guards an operation against the store being deleted after the
// request was queued.
func (s *ObjectStore) live() error {
	if s.store.deleted {
		return NewError(InvalidStateErr, "store %q has been deleted", s.store.name)
	}
	return nil
}

// Put stores value under key, replacing any existing record. key must be
// nil for stores with a key path, and may be nil for stores with a key
// generator. The request result is the record key.
func (s *ObjectStore) Put(value, key any) (*Request, error) {
	return s.write(value, key, false)
}

// Add is Put without overwrite: the request fails with ConstraintError if
// a record already exists under the key.
func (s *ObjectStore) Add(value, key any) (*Request, error) {
	return s.write(value, key, true)
}

func (s *ObjectStore) write(value, key any, noOverwrite bool) (*Request, error) {
	if err := s.check(true); err != nil {
		return nil, err
	}

	opts := s.store.opts
	if opts.KeyPath != "" && key != nil {
		return nil, NewError(DataErr, "store %q uses in-line keys; key must not be given", s.store.name)
	}
	if opts.KeyPath == "" && !opts.AutoIncrement && key == nil {
		return nil, NewError(DataErr, "store %q requires a key", s.store.name)
	}
	if key != nil {
		k, err := NormalizeKey(key)
		if err != nil {
			return nil, err
		}
		key = k
	}

	clone, err := cloneValue(value)
	if err != nil {
		return nil, err
	}

	if opts.KeyPath != "" {
		if raw, ok := extractKey(clone, opts.KeyPath); ok {
			k, err := NormalizeKey(raw)
			if err != nil {
				return nil, err
			}
			key = k
		} else if !opts.AutoIncrement {
			return nil, NewError(DataErr, "value has no key at %q", opts.KeyPath)
		} else if !canInjectKey(clone, opts.KeyPath) {
			return nil, NewError(DataErr, "cannot inject key at %q", opts.KeyPath)
		}
	}

	return s.tx.Enqueue(s, func() (any, error) {
		if err := s.live(); err != nil {
			return nil, err
		}
		rs := s.store

		k := key
		generated := false
		if k == nil {
			next, err := rs.nextKey()
			if err != nil {
				return nil, err
			}
			k = next
			generated = true
		}

		prev, had := rs.get(k)
		if noOverwrite && had {
			return nil, NewError(ConstraintErr, "key %v already exists in %q", k, rs.name)
		}

		if generated || rs.bumpsKeyGen(k) {
			s.tx.LogUndo(UndoEntry{Kind: UndoRestoreKeyGenerator, Store: rs.name, KeyGen: rs.keyGen})
		}
		s.tx.LogUndo(UndoEntry{Kind: UndoRestoreRecord, Store: rs.name, Key: k, Value: prev, HadValue: had})

		if generated {
			if opts.KeyPath != "" {
				injectKey(clone, opts.KeyPath, k)
			}
			rs.keyGen = k.(float64)
		} else {
			rs.observeKey(k)
		}
		rs.put(k, clone)
		return k, nil
	}, nil)
}

// Get yields the value of the first record matching query, a key or a
// *KeyRange, or nil if none matches.
func (s *ObjectStore) Get(query any) (*Request, error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	if query == nil {
		return nil, NewError(DataErr, "get requires a key or key range")
	}
	r, err := toRange(query)
	if err != nil {
		return nil, err
	}

	return s.tx.Enqueue(s, func() (any, error) {
		if err := s.live(); err != nil {
			return nil, err
		}
		recs := s.store.scan(r, DirectionNext, 1, true)
		if len(recs) == 0 {
			return nil, nil
		}
		return recs[0].Value, nil
	}, nil)
}

// GetAll yields the values matching query in key order, at most count of
// them when count > 0. A nil query matches every record.
func (s *ObjectStore) GetAll(query any, count int) (*Request, error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	r, err := toRange(query)
	if err != nil {
		return nil, err
	}

	return s.tx.Enqueue(s, func() (any, error) {
		if err := s.live(); err != nil {
			return nil, err
		}
		recs := s.store.scan(r, DirectionNext, count, true)
		out := make([]any, len(recs))
		for i, rec := range recs {
			out[i] = rec.Value
		}
		return out, nil
	}, nil)
}

// Delete removes every record matching query, a key or a *KeyRange.
func (s *ObjectStore) Delete(query any) (*Request, error) {
	if err := s.check(true); err != nil {
		return nil, err
	}
	if query == nil {
		return nil, NewError(DataErr, "delete requires a key or key range")
	}
	r, err := toRange(query)
	if err != nil {
		return nil, err
	}

	return s.tx.Enqueue(s, func() (any, error) {
		if err := s.live(); err != nil {
			return nil, err
		}
		rs := s.store
		for _, rec := range rs.scan(r, DirectionNext, 0, false) {
			s.tx.LogUndo(UndoEntry{Kind: UndoRestoreRecord, Store: rs.name, Key: rec.Key, Value: rec.Value, HadValue: true})
			rs.remove(rec.Key)
		}
		return nil, nil
	}, nil)
}

// Clear removes every record. The key generator is not reset.
func (s *ObjectStore) Clear() (*Request, error) {
	if err := s.check(true); err != nil {
		return nil, err
	}

	return s.tx.Enqueue(s, func() (any, error) {
		if err := s.live(); err != nil {
			return nil, err
		}
		rs := s.store
		s.tx.LogUndo(UndoEntry{Kind: UndoRestoreStore, Store: rs.name, Records: rs.snapshot()})
		rs.clear()
		return nil, nil
	}, nil)
}

// Count yields the number of records matching query. A nil query counts
// every record.
func (s *ObjectStore) Count(query any) (*Request, error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	r, err := toRange(query)
	if err != nil {
		return nil, err
	}

	return s.tx.Enqueue(s, func() (any, error) {
		if err := s.live(); err != nil {
			return nil, err
		}
		return s.store.count(r), nil
	}, nil)
}

// OpenCursor yields a *Cursor positioned on the first record matching
// query in direction dir, or nil when nothing matches. Advancing the
// cursor completes the same request again.
func (s *ObjectStore) OpenCursor(query any, dir Direction) (*Request, error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	r, err := toRange(query)
	if err != nil {
		return nil, err
	}

	c := &Cursor{store: s, rng: r, dir: dir}
	req, err := s.tx.Enqueue(s, c.iterate, nil)
	if err != nil {
		return nil, err
	}
	c.req = req
	return req, nil
}
