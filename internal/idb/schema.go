package idb

// CreateObjectStore adds a store inside a versionchange transaction. The
// store is dropped again if the transaction aborts.
func (t *Transaction) CreateObjectStore(name string, opts StoreOptions) (*ObjectStore, error) {
	if err := t.checkSchemaChange(); err != nil {
		return nil, err
	}
	rs, err := t.db.createStore(name, opts)
	if err != nil {
		return nil, err
	}
	t.LogUndo(UndoEntry{Kind: UndoDropStore, Store: name})
	t.logger.Debug("store created", "store", name, "key_path", opts.KeyPath, "auto_increment", opts.AutoIncrement)

	h := newObjectStore(t, rs)
	t.handles[name] = h
	return h, nil
}

// DeleteObjectStore removes a store inside a versionchange transaction.
// Handles to the store fail with InvalidStateError from then on. The
// records are purged by a bookkeeping request queued behind the requests
// already pending, and the store is revived with its records if the
// transaction aborts.
func (t *Transaction) DeleteObjectStore(name string) error {
	if err := t.checkSchemaChange(); err != nil {
		return err
	}
	rs, ok := t.db.stores[name]
	if !ok {
		return NewError(NotFoundErr, "store %q does not exist", name)
	}

	t.LogUndo(UndoEntry{
		Kind:    UndoReviveStore,
		Store:   name,
		Options: rs.opts,
		Records: rs.snapshot(),
		KeyGen:  rs.keyGen,
	})
	rs.deleted = true
	delete(t.db.stores, name)
	delete(t.handles, name)

	_, err := t.Enqueue(nil, func() (any, error) {
		rs.clear()
		return nil, nil
	}, nil)
	if err != nil {
		return err
	}
	t.logger.Debug("store deleted", "store", name, "records", rs.Len())
	return nil
}

func (t *Transaction) checkSchemaChange() error {
	if t.mode != VersionChange {
		return NewError(InvalidStateErr, "schema changes require a versionchange transaction")
	}
	if t.state != Active || t.aborting {
		return NewError(TransactionInactiveErr, "transaction %s is %s", t.id, t.state)
	}
	return nil
}
