package query

import (
	"strconv"
	"strings"
)

// Key identifies a cached read, e.g. Key{"messages", "12"}.
type Key []string

// K builds a key from strings and ints.
func K(parts ...any) Key {
	k := make(Key, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			k = append(k, v)
		case int:
			k = append(k, strconv.Itoa(v))
		case int64:
			k = append(k, strconv.FormatInt(v, 10))
		default:
			panic("query: unsupported key part")
		}
	}
	return k
}

// String is the map form of the key. Parts are joined by the unit
// separator so "a/b" and ("a", "b") never collide.
func (k Key) String() string {
	return strings.Join(k, "\x1f")
}

func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}
