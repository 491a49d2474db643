package idb

import (
	"bytes"
	"math"
	"time"
	"unicode/utf16"
)

// Keys are plain Go values. After normalization a key is one of:
//
//	float64    number (every Go integer and float kind normalizes to this)
//	time.Time  date
//	string     string
//	[]byte     binary
//	[]any      array of normalized keys
//
// Ordering across kinds is number < date < string < binary < array.

const (
	rankNumber = iota + 1
	rankDate
	rankString
	rankBinary
	rankArray
)

// NormalizeKey validates v as a key and returns its normalized form.
// Invalid keys fail with DataError.
func NormalizeKey(v any) (any, error) {
	return normalizeKey(v, 0)
}

// maxKeyDepth bounds array and value nesting.
const maxKeyDepth = 64

func normalizeKey(v any, depth int) (any, error) {
	if depth > maxKeyDepth {
		return nil, NewError(DataErr, "key nesting too deep")
	}

	switch k := v.(type) {
	case float64:
		if math.IsNaN(k) {
			return nil, NewError(DataErr, "NaN is not a valid key")
		}
		return k, nil
	case float32:
		return normalizeKey(float64(k), depth)
	case int:
		return float64(k), nil
	case int8:
		return float64(k), nil
	case int16:
		return float64(k), nil
	case int32:
		return float64(k), nil
	case int64:
		return float64(k), nil
	case uint:
		return float64(k), nil
	case uint8:
		return float64(k), nil
	case uint16:
		return float64(k), nil
	case uint32:
		return float64(k), nil
	case uint64:
		return float64(k), nil
	case time.Time:
		if k.IsZero() {
			return nil, NewError(DataErr, "zero time is not a valid key")
		}
		return k, nil
	case string:
		return k, nil
	case []byte:
		out := make([]byte, len(k))
		copy(out, k)
		return out, nil
	case []string:
		out := make([]any, len(k))
		for i, s := range k {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(k))
		for i, elem := range k {
			n, err := normalizeKey(elem, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case nil:
		return nil, NewError(DataErr, "undefined is not a valid key")
	default:
		return nil, NewError(DataErr, "%T is not a valid key", v)
	}
}

func keyRank(k any) int {
	switch k.(type) {
	case float64:
		return rankNumber
	case time.Time:
		return rankDate
	case string:
		return rankString
	case []byte:
		return rankBinary
	case []any:
		return rankArray
	default:
		return 0
	}
}

// CompareKeys orders two normalized keys, returning -1, 0 or 1.
func CompareKeys(a, b any) int {
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNumber:
		return compareOrdered(a.(float64), b.(float64))
	case rankDate:
		return a.(time.Time).Compare(b.(time.Time))
	case rankString:
		return compareUTF16(a.(string), b.(string))
	case rankBinary:
		return bytes.Compare(a.([]byte), b.([]byte))
	case rankArray:
		aa, ba := a.([]any), b.([]any)
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := CompareKeys(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return compareOrdered(len(aa), len(ba))
	}
	return 0
}

func compareOrdered[T int | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareUTF16 compares strings by UTF-16 code units. Go's native string
// comparison works on UTF-8 bytes, which orders supplementary-plane
// characters differently.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return compareOrdered(len(a16), len(b16))
}

// keyComparator adapts CompareKeys to the treemap comparator signature.
func keyComparator(a, b interface{}) int {
	return CompareKeys(a, b)
}

// KeyRange is an interval over keys. A nil *KeyRange matches every key.
type KeyRange struct {
	Lower     any
	Upper     any
	LowerOpen bool
	UpperOpen bool
}

// Only returns a range matching exactly one key.
func Only(key any) (*KeyRange, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return &KeyRange{Lower: k, Upper: k}, nil
}

// LowerBound returns a range with only a lower bound.
func LowerBound(key any, open bool) (*KeyRange, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return &KeyRange{Lower: k, LowerOpen: open}, nil
}

// UpperBound returns a range with only an upper bound.
func UpperBound(key any, open bool) (*KeyRange, error) {
	k, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}
	return &KeyRange{Upper: k, UpperOpen: open}, nil
}

// Bound returns a range between lower and upper. It fails with DataError
// if lower is greater than upper, or if they are equal and either end is open.
func Bound(lower, upper any, lowerOpen, upperOpen bool) (*KeyRange, error) {
	l, err := NormalizeKey(lower)
	if err != nil {
		return nil, err
	}
	u, err := NormalizeKey(upper)
	if err != nil {
		return nil, err
	}

	c := CompareKeys(l, u)
	if c > 0 {
		return nil, NewError(DataErr, "lower bound is greater than upper bound")
	}
	if c == 0 && (lowerOpen || upperOpen) {
		return nil, NewError(DataErr, "empty range: equal bounds with an open end")
	}
	return &KeyRange{Lower: l, Upper: u, LowerOpen: lowerOpen, UpperOpen: upperOpen}, nil
}

// Includes reports whether the normalized key lies within the range.
func (r *KeyRange) Includes(key any) bool {
	if r == nil {
		return true
	}
	if r.Lower != nil {
		c := CompareKeys(key, r.Lower)
		if c < 0 || (c == 0 && r.LowerOpen) {
			return false
		}
	}
	if r.Upper != nil {
		c := CompareKeys(key, r.Upper)
		if c > 0 || (c == 0 && r.UpperOpen) {
			return false
		}
	}
	return true
}

// toRange interprets a query argument as either a key or a key range.
func toRange(query any) (*KeyRange, error) {
	switch q := query.(type) {
	case *KeyRange:
		return q, nil
	case nil:
		return nil, nil
	default:
		return Only(q)
	}
}
