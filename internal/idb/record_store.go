package idb

import (
	"math"

	"github.com/emirpasic/gods/maps/treemap"
)

// maxGeneratedKey is the largest key a key generator may produce (2^53).
const maxGeneratedKey = 1 << 53

// StoreOptions configure a new object store.
type StoreOptions struct {
	// KeyPath is a dotted property path for in-line keys. Empty means keys
	// are supplied out of line.
	KeyPath string
	// AutoIncrement attaches a key generator to the store.
	AutoIncrement bool
}

// Record is one key/value pair held by a RecordStore.
type Record struct {
	Key   any
	Value any
}

// Direction is a cursor iteration order.
type Direction int

const (
	DirectionNext Direction = iota
	DirectionPrev
)

func (d Direction) String() string {
	if d == DirectionPrev {
		return "prev"
	}
	return "next"
}

// ParseDirection parses "next", "nextunique", "prev" or "prevunique".
// Object store keys are unique, so the unique variants behave the same.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "next", "nextunique":
		return DirectionNext, nil
	case "prev", "prevunique":
		return DirectionPrev, nil
	default:
		return DirectionNext, NewError(DataErr, "unknown cursor direction %q", s)
	}
}

// RecordStore holds the records of one object store ordered by key.
//
// It is the physical storage behind ObjectStore handles and is only mutated
// by operations running inside a transaction's driver loop, or by the undo
// interpreter during abort.
type RecordStore struct {
	name    string
	opts    StoreOptions
	keyGen  float64 // last generated or explicitly used numeric key
	records *treemap.Map
	deleted bool
}

func newRecordStore(name string, opts StoreOptions) *RecordStore {
	return &RecordStore{
		name:    name,
		opts:    opts,
		records: treemap.NewWith(keyComparator),
	}
}

// Name returns the store name.
func (s *RecordStore) Name() string { return s.name }

// Options returns the options the store was created with.
func (s *RecordStore) Options() StoreOptions { return s.opts }

// Len returns the number of records.
func (s *RecordStore) Len() int { return s.records.Size() }

// Get returns a clone of the value stored under key.
func (s *RecordStore) Get(key any) (any, bool) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, false
	}
	v, ok := s.records.Get(k)
	if !ok {
		return nil, false
	}
	return mustClone(v), true
}

// Records returns clones of every record in key order.
func (s *RecordStore) Records() []Record {
	return s.scan(nil, DirectionNext, 0, true)
}

// Load writes a record outside any transaction, advancing the key
// generator as an explicit key would. It is used to seed stores before
// transactions run. In-line keys are taken from value when key is nil.
func (s *RecordStore) Load(key, value any) error {
	if key == nil && s.opts.KeyPath != "" {
		k, ok := extractKey(value, s.opts.KeyPath)
		if !ok {
			return NewError(DataErr, "value has no key at %q", s.opts.KeyPath)
		}
		key = k
	}
	k, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	v, err := cloneValue(value)
	if err != nil {
		return err
	}
	s.observeKey(k)
	s.put(k, v)
	return nil
}

func (s *RecordStore) get(key any) (any, bool) {
	return s.records.Get(key)
}

func (s *RecordStore) put(key, value any) {
	s.records.Put(key, value)
}

func (s *RecordStore) remove(key any) {
	s.records.Remove(key)
}

// scan returns records within r in direction dir. limit <= 0 means all.
func (s *RecordStore) scan(r *KeyRange, dir Direction, limit int, clone bool) []Record {
	var out []Record
	it := s.records.Iterator()

	step := it.Next
	if dir == DirectionPrev {
		it.End()
		step = it.Prev
	}

	for step() {
		if !r.Includes(it.Key()) {
			continue
		}
		v := it.Value()
		if clone {
			v = mustClone(v)
		}
		out = append(out, Record{Key: it.Key(), Value: v})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// seek returns the first record in r strictly after pos in direction dir.
// A nil pos starts from the beginning.
func (s *RecordStore) seek(r *KeyRange, dir Direction, pos any) (Record, bool) {
	it := s.records.Iterator()

	step := it.Next
	if dir == DirectionPrev {
		it.End()
		step = it.Prev
	}

	for step() {
		k := it.Key()
		if pos != nil {
			c := CompareKeys(k, pos)
			if (dir == DirectionNext && c <= 0) || (dir == DirectionPrev && c >= 0) {
				continue
			}
		}
		if !r.Includes(k) {
			continue
		}
		return Record{Key: k, Value: it.Value()}, true
	}
	return Record{}, false
}

func (s *RecordStore) count(r *KeyRange) int {
	if r == nil {
		return s.records.Size()
	}
	n := 0
	it := s.records.Iterator()
	for it.Next() {
		if r.Includes(it.Key()) {
			n++
		}
	}
	return n
}

// snapshot returns the records without cloning; values are never mutated
// in place, so sharing them with an undo entry is safe.
func (s *RecordStore) snapshot() []Record {
	return s.scan(nil, DirectionNext, 0, false)
}

func (s *RecordStore) restore(records []Record) {
	s.records.Clear()
	for _, rec := range records {
		s.records.Put(rec.Key, rec.Value)
	}
}

func (s *RecordStore) clear() {
	s.records.Clear()
}

// nextKey returns the next generated key without consuming it.
func (s *RecordStore) nextKey() (float64, error) {
	next := s.keyGen + 1
	if next > maxGeneratedKey {
		return 0, NewError(ConstraintErr, "key generator exhausted")
	}
	return next, nil
}

// bumpsKeyGen reports whether using key explicitly must advance the generator.
func (s *RecordStore) bumpsKeyGen(key any) bool {
	n, ok := key.(float64)
	return ok && s.opts.AutoIncrement && math.Floor(n) > s.keyGen
}

func (s *RecordStore) observeKey(key any) {
	if !s.bumpsKeyGen(key) {
		return
	}
	n := key.(float64)
	s.keyGen = math.Min(math.Floor(n), maxGeneratedKey)
}
