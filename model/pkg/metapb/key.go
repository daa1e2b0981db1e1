package metapb

import (
	"bytes"

	"github.com/google/btree"
)

type KeyType int32

const (
	KeyInvalid KeyType = iota
	KeyOrdinary
	KeyNegativeInfinity
	KeyPositiveInfinity
)

var (
	NegativeInfinityKey = &Key{Key: nil, Type: KeyNegativeInfinity}
	PositiveInfinityKey = &Key{Key: nil, Type: KeyPositiveInfinity}
)

// Key is a point in a table's key space. The two infinities bound the
// first and last tablet of a table.
type Key struct {
	Key  []byte  `json:"key,omitempty"`
	Type KeyType `json:"type"`
}

// OrdinaryKey wraps raw key bytes.
func OrdinaryKey(key []byte) *Key {
	return &Key{Key: key, Type: KeyOrdinary}
}

func (k *Key) GetKey() []byte {
	if k == nil {
		return nil
	}
	return k.Key
}

func (k *Key) GetType() KeyType {
	if k == nil {
		return KeyInvalid
	}
	return k.Type
}

func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	key := &Key{Key: nil, Type: k.Type}
	if k.Type == KeyOrdinary {
		key.Key = append([]byte(nil), k.Key...)
	}
	return key
}

func (k *Key) IsNegativeInfinity() bool {
	return k.GetType() == KeyNegativeInfinity
}

func (k *Key) IsPositiveInfinity() bool {
	return k.GetType() == KeyPositiveInfinity
}

// Less orders keys against other keys and against tablets, so that a
// btree of tablets can be probed with a bare key: a key compares equal
// to the tablet whose range [start, end) contains it.
func (k *Key) Less(item btree.Item) bool {
	switch it := item.(type) {
	case *Tablet:
		return Compare(k, it.GetStartKey()) < 0
	case *Key:
		return Compare(k, it) < 0
	}
	return false
}

func (t *Tablet) Less(item btree.Item) bool {
	switch it := item.(type) {
	case *Tablet:
		return Compare(t.GetStartKey(), it.GetStartKey()) < 0
	case *Key:
		return Compare(t.GetEndKey(), it) <= 0
	}
	return false
}

// Compare returns an integer comparing two keys lexicographically,
// with the infinities below and above every ordinary key.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func Compare(a, b *Key) int {
	if a == nil || b == nil {
		return 0
	}
	switch a.Type {
	case KeyPositiveInfinity:
		if b.Type == KeyPositiveInfinity {
			return 0
		}
		return 1
	case KeyNegativeInfinity:
		if b.Type == KeyNegativeInfinity {
			return 0
		}
		return -1
	case KeyOrdinary:
		if b.Type == KeyPositiveInfinity {
			return -1
		} else if b.Type == KeyNegativeInfinity {
			return 1
		}
		return bytes.Compare(a.Key, b.Key)
	}
	return 0
}
