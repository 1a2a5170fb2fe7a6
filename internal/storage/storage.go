package storage

import (
	"errors"
	"fmt"
)

// ErrInvalidKey is returned for keys that cannot name a record.
var ErrInvalidKey = errors.New("invalid storage key")

// Backend is a durable key/value store of serialized records.
// Put replaces the whole record (last write wins).
// Keys returns stored keys in ascending order.
// Implementations must be safe for concurrent use.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, data []byte) error
	Keys() ([]string, error)
}

const (
	KindFile = "file"
	KindBolt = "bolt"
)

// Open returns the backend named by kind and a function releasing it.
func Open(kind, dir, boltPath string) (Backend, func() error, error) {
	switch kind {
	case KindFile, "":
		return NewFileStore(dir), func() error { return nil }, nil
	case KindBolt:
		bs, err := NewBoltStore(boltPath)
		if err != nil {
			return nil, nil, err
		}
		return bs, bs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
