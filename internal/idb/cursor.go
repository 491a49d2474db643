package idb

// Cursor iterates the records of an object store in key order.
//
// A cursor is delivered as the result of the request returned by
// OpenCursor. Continue re-enqueues that same request, so one success
// listener sees every position.
type Cursor struct {
	store *ObjectStore
	req   *Request
	rng   *KeyRange
	dir   Direction

	position any
	key      any
	value    any
	gotValue bool
}

var _ Source = (*Cursor)(nil)

// SourceName implements Source.
func (c *Cursor) SourceName() string { return "cursor(" + c.store.Name() + ")" }

// Key returns the key at the current position.
func (c *Cursor) Key() any { return c.key }

// Value returns a copy of the value at the current position.
func (c *Cursor) Value() any { return c.value }

// Direction returns the iteration order.
func (c *Cursor) Direction() Direction { return c.dir }

// Request returns the request the cursor completes on every iteration.
func (c *Cursor) Request() *Request { return c.req }

// Source returns the store the cursor iterates.
func (c *Cursor) Source() *ObjectStore { return c.store }

func (c *Cursor) iterate() (any, error) {
	if err := c.store.live(); err != nil {
		return nil, err
	}
	rec, ok := c.store.store.seek(c.rng, c.dir, c.position)
	if !ok {
		c.key, c.value = nil, nil
		c.gotValue = false
		return nil, nil
	}
	c.position = rec.Key
	c.key = rec.Key
	c.value = mustClone(rec.Value)
	c.gotValue = true
	return c, nil
}

func (c *Cursor) checkPositioned() error {
	if !c.gotValue {
		return NewError(InvalidStateErr, "cursor is not positioned on a record")
	}
	return nil
}

// Continue advances to the next record. The cursor's request is pending
// again until the advance completes. Calling Continue again before that
// fails with InvalidStateError.
func (c *Cursor) Continue() error {
	if err := c.store.check(false); err != nil {
		return err
	}
	if err := c.checkPositioned(); err != nil {
		return err
	}
	if _, err := c.store.tx.Enqueue(c, c.iterate, c.req); err != nil {
		return err
	}
	c.gotValue = false
	return nil
}

// Update replaces the value at the current position. For stores with a
// key path the value's key must equal the cursor key.
func (c *Cursor) Update(value any) (*Request, error) {
	if err := c.store.check(true); err != nil {
		return nil, err
	}
	if err := c.checkPositioned(); err != nil {
		return nil, err
	}

	kp := c.store.KeyPath()
	if kp == "" {
		return c.store.Put(value, c.key)
	}
	raw, ok := extractKey(value, kp)
	if !ok {
		return nil, NewError(DataErr, "value has no key at %q", kp)
	}
	k, err := NormalizeKey(raw)
	if err != nil {
		return nil, err
	}
	if CompareKeys(k, c.key) != 0 {
		return nil, NewError(DataErr, "value key %v does not match cursor key %v", k, c.key)
	}
	return c.store.Put(value, nil)
}

// Delete removes the record at the current position.
func (c *Cursor) Delete() (*Request, error) {
	if err := c.store.check(true); err != nil {
		return nil, err
	}
	if err := c.checkPositioned(); err != nil {
		return nil, err
	}
	return c.store.Delete(c.key)
}
